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

// Binary chalkos boots a chalkos kernel instance and drives it from the
// host: an interactive shell attached to the console TTY, a scripted boot
// check, and address-space inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"chalkos.dev/chalkos/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging")
	logJSON   = flag.Bool("log-json", false, "emit logs as JSON records")
	configArg = flag.String("config", "", "path to a TOML boot config")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(bootCmd), "")
	subcommands.Register(new(shellCmd), "")
	subcommands.Register(new(mapsCmd), "")

	flag.Parse()

	conf, err := loadConfig(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chalkos: %v\n", err)
		os.Exit(1)
	}
	if *debug || conf.Debug {
		log.SetLevel(log.Debug)
	}
	if *logJSON || conf.LogJSON {
		log.SetJSON()
	}
	log.SetOutput(os.Stderr)

	ctx := context.WithValue(context.Background(), configKey{}, conf)
	os.Exit(int(subcommands.Execute(ctx)))
}

type configKey struct{}
