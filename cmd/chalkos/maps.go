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

// mapsCmd boots a kernel, builds a representative address space, and
// prints its mapping table.
type mapsCmd struct{}

// Name implements subcommands.Command.
func (*mapsCmd) Name() string { return "maps" }

// Synopsis implements subcommands.Command.
func (*mapsCmd) Synopsis() string { return "print a demo task's address-space map" }

// Usage implements subcommands.Command.
func (*mapsCmd) Usage() string { return "maps\n" }

// SetFlags implements subcommands.Command.
func (*mapsCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*mapsCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	_, _, init, err := kernel.Boot(tty.NewWriterTerminal(os.Stdout))
	if err != nil {
		log.Warningf("boot failed: %v", err)
		return subcommands.ExitFailure
	}

	if _, err := init.Mmap(0, 4*chalk.PageSize, chalk.ProtRead|chalk.ProtExec,
		chalk.MapPrivate|chalk.MapAnon, -1, 0); err != nil {
		log.Warningf("mmap text: %v", err)
		return subcommands.ExitFailure
	}
	if _, err := init.Mmap(0, 8*chalk.PageSize, chalk.ProtRead|chalk.ProtWrite,
		chalk.MapPrivate|chalk.MapAnon, -1, 0); err != nil {
		log.Warningf("mmap data: %v", err)
		return subcommands.ExitFailure
	}
	init.SetBrkRegion(chalk.UserMemLow + 1024*chalk.PageSize)
	if _, err := init.Brk(chalk.UserMemLow + 1028*chalk.PageSize); err != nil {
		log.Warningf("brk: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("task %d:\n%s", init.TID(), init.MM.MappingInfo())
	return subcommands.ExitSuccess
}
