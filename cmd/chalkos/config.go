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
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the TOML boot configuration.
type Config struct {
	// Debug enables debug logging, same as -debug.
	Debug bool `toml:"debug"`

	// LogJSON switches logs to JSON records, same as -log-json.
	LogJSON bool `toml:"log_json"`

	// Preload lists files created in the root filesystem at boot.
	Preload []PreloadFile `toml:"preload"`
}

// PreloadFile is one file seeded into the ramfs at boot.
type PreloadFile struct {
	Path     string `toml:"path"`
	Contents string `toml:"contents"`
}

func loadConfig(path string) (*Config, error) {
	conf := &Config{}
	if path == "" {
		return conf, nil
	}
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return conf, nil
}
