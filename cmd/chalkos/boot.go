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

	"github.com/google/subcommands"

	"chalkos.dev/chalkos/pkg/abi/chalk"
	"chalkos.dev/chalkos/pkg/drivers/tty"
	"chalkos.dev/chalkos/pkg/kernel"
	"chalkos.dev/chalkos/pkg/log"
)

// bootCmd boots a kernel, seeds the filesystem from the config, runs a
// fork/COW smoke workload, and reports the resulting state.
type bootCmd struct{}

// Name implements subcommands.Command.
func (*bootCmd) Name() string { return "boot" }

// Synopsis implements subcommands.Command.
func (*bootCmd) Synopsis() string { return "boot a kernel and run the init workload" }

// Usage implements subcommands.Command.
func (*bootCmd) Usage() string { return "boot\n" }

// SetFlags implements subcommands.Command.
func (*bootCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*bootCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := ctx.Value(configKey{}).(*Config)

	k, _, init, err := kernel.Boot(tty.NewWriterTerminal(os.Stdout))
	if err != nil {
		log.Warningf("boot failed: %v", err)
		return subcommands.ExitFailure
	}
	sctx := init.SyscallContext()

	for _, p := range conf.Preload {
		fd, err := k.VFS().OpenFile(sctx, p.Path, chalk.OWronly|chalk.OCreat, 0)
		if err != nil {
			log.Warningf("preload %q: %v", p.Path, err)
			return subcommands.ExitFailure
		}
		if _, err := k.VFS().Write(sctx, fd, []byte(p.Contents)); err != nil {
			log.Warningf("preload %q: %v", p.Path, err)
			return subcommands.ExitFailure
		}
		k.VFS().Close(sctx, fd)
	}

	// Fork/COW smoke workload: the child must keep seeing the pre-fork
	// byte after the parent diverges.
	addr, err := init.Mmap(0, chalk.PageSize, chalk.ProtRead|chalk.ProtWrite,
		chalk.MapPrivate|chalk.MapAnon, -1, 0)
	if err != nil {
		log.Warningf("mmap: %v", err)
		return subcommands.ExitFailure
	}
	if err := init.MM.Write(addr, []byte{'X'}); err != nil {
		log.Warningf("write: %v", err)
		return subcommands.ExitFailure
	}
	child, err := init.Fork()
	if err != nil {
		log.Warningf("fork: %v", err)
		return subcommands.ExitFailure
	}
	init.MM.Write(addr, []byte{'Y'})
	child.Start(func(t *kernel.Task) {
		b := make([]byte, 1)
		if err := t.MM.Read(addr, b); err != nil || b[0] != 'X' {
			log.Warningf("child sees %q (%v), copy-on-write broken", b[0], err)
			t.Exit(1)
			return
		}
		t.Exit(0)
	})
	_, status, err := init.WaitAny()
	if err != nil || status != 0 {
		log.Warningf("child status %d (%v)", status, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("boot ok: %d live task(s), child copy-on-write verified\n", len(k.Tasks()))
	return subcommands.ExitSuccess
}
