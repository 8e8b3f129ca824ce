// Copyright 2026 The Chalkos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/drivers/tty"
	"chalkos.dev/chalkos/pkg/errors/kerrno"
	"chalkos.dev/chalkos/pkg/kernel"
	"chalkos.dev/chalkos/pkg/log"
	"chalkos.dev/chalkos/pkg/vfs"
)

// shellCmd attaches the host terminal to the console TTY: host keystrokes
// are fed to the line discipline exactly as a keyboard interrupt would,
// and a small shell reads cooked lines back through the VFS.
type shellCmd struct{}

// Name implements subcommands.Command.
func (*shellCmd) Name() string { return "shell" }

// Synopsis implements subcommands.Command.
func (*shellCmd) Synopsis() string { return "run an interactive shell on the console TTY" }

// Usage implements subcommands.Command.
func (*shellCmd) Usage() string { return "shell\n" }

// SetFlags implements subcommands.Command.
func (*shellCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*shellCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	k, console, init, err := kernel.Boot(tty.NewWriterTerminal(os.Stdout))
	if err != nil {
		log.Warningf("boot failed: %v", err)
		return subcommands.ExitFailure
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			log.Warningf("raw mode: %v", err)
			return subcommands.ExitFailure
		}
		defer term.Restore(fd, old)
		if ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ); err == nil {
			log.Debugf("shell: host terminal %dx%d", ws.Col, ws.Row)
		}
	}

	// Host input thread, standing in for the keyboard ISR.
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			c := buf[0]
			if c == '\r' {
				c = '\n'
			}
			console.InputByte(c)
		}
	}()

	sctx := init.SyscallContext()
	ttyFD, err := k.VFS().OpenFile(sctx, "/dev/tty0", chalk.ORdwr, 0)
	if err != nil {
		log.Warningf("open /dev/tty0: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Print("chalkos shell; ctrl-d on an empty line exits\r\n")
	line := make([]byte, chalk.LdiscBufferSize)
	for {
		n, err := k.VFS().Read(sctx, ttyFD, line)
		if err == kerrno.EINTR {
			continue
		}
		if err != nil {
			log.Warningf("tty read: %v", err)
			return subcommands.ExitFailure
		}
		if n == 0 {
			// EOT on an empty line.
			fmt.Print("\r\n")
			return subcommands.ExitSuccess
		}
		runShellLine(k, sctx, strings.TrimSuffix(string(line[:n]), "\n"))
	}
}

// runShellLine interprets one cooked line as a toy command.
func runShellLine(k *kernel.Kernel, sctx *vfs.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	v := k.VFS()
	var err error
	switch fields[0] {
	case "ls":
		path := "."
		if len(fields) > 1 {
			path = fields[1]
		}
		err = listDir(v, sctx, path)
	case "cd":
		if len(fields) > 1 {
			err = v.Chdir(sctx, fields[1])
		}
	case "mkdir":
		if len(fields) > 1 {
			err = v.Mkdir(sctx, fields[1])
		}
	case "cat":
		if len(fields) > 1 {
			err = catFile(v, sctx, fields[1])
		}
	case "stat":
		if len(fields) > 1 {
			var st chalk.Stat
			if err = v.Stat(sctx, fields[1], &st); err == nil {
				fmt.Printf("ino=%d mode=%#x size=%d nlink=%d\r\n", st.Ino, st.Mode, st.Size, st.Nlink)
			}
		}
	default:
		fmt.Printf("unknown command %q\r\n", fields[0])
	}
	if err != nil {
		fmt.Printf("%s: %v\r\n", fields[0], err)
	}
}

func listDir(v *vfs.VFS, sctx *vfs.Context, path string) error {
	fd, err := v.OpenFile(sctx, path, chalk.ORdonly, 0)
	if err != nil {
		return err
	}
	defer v.Close(sctx, fd)
	for {
		var d chalk.Dirent
		n, err := v.Getdent(sctx, fd, &d)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		fmt.Printf("%8d %s\r\n", d.Ino, d.Name)
	}
}

func catFile(v *vfs.VFS, sctx *vfs.Context, path string) error {
	fd, err := v.OpenFile(sctx, path, chalk.ORdonly, 0)
	if err != nil {
		return err
	}
	defer v.Close(sctx, fd)
	buf := make([]byte, 4096)
	for {
		n, err := v.Read(sctx, fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		os.Stdout.Write([]byte(strings.ReplaceAll(string(buf[:n]), "\n", "\r\n")))
	}
}
