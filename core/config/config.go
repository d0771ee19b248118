// Copyright 2024 bbaa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the daemon configuration, stored as TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// Config is the user configuration of the daemon.
type Config struct {
	Daemon struct {
		// DataDirectory holds every plugin store.
		DataDirectory string
		// Operators pass every permission check.
		Operators []string
	}
	RPC struct {
		// Enabled starts the Guard service the game server calls into.
		Enabled bool
		Address string
	}
	Server struct {
		// StartScript launches the Bedrock server. Leave empty when the server is started
		// by something else; commands are then printed to stdout.
		StartScript string
	}
	Console struct {
		// REPL reads daemon commands from the terminal.
		REPL bool
	}
	Rank struct {
		ExpiryIntervalSeconds int
	}
	Roulette struct {
		// Item is the currency of the tables.
		Item            string
		SpinSeconds     int
		AnimationMillis int
	}
	Backup struct {
		Enabled bool
		// Cron is a five field crontab expression.
		Cron      string
		Directory string
		// Keep is the number of snapshots retained, 0 keeps all of them.
		Keep int
	}
}

// Default returns a configuration with the default values filled out.
func Default() Config {
	c := Config{}
	c.Daemon.DataDirectory = "data"
	c.Daemon.Operators = []string{}
	c.RPC.Enabled = true
	c.RPC.Address = "127.0.0.1:12345"
	c.Console.REPL = true
	c.Rank.ExpiryIntervalSeconds = 30
	c.Roulette.Item = "diamond"
	c.Roulette.SpinSeconds = 5
	c.Roulette.AnimationMillis = 250
	c.Backup.Enabled = true
	c.Backup.Cron = "*/30 * * * *"
	c.Backup.Directory = "backup"
	c.Backup.Keep = 48
	return c
}

// Load reads the configuration at path. A missing file is created with the defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err := toml.Marshal(c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return c, fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return c, fmt.Errorf("write default config: %w", err)
		}
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	c.Normalize()
	return c, c.Validate()
}

// Normalize replaces zero values with their defaults.
func (c *Config) Normalize() {
	def := Default()
	if c.Daemon.DataDirectory == "" {
		c.Daemon.DataDirectory = def.Daemon.DataDirectory
	}
	if c.RPC.Address == "" {
		c.RPC.Address = def.RPC.Address
	}
	if c.Rank.ExpiryIntervalSeconds <= 0 {
		c.Rank.ExpiryIntervalSeconds = def.Rank.ExpiryIntervalSeconds
	}
	c.Roulette.Item = strings.ToLower(strings.TrimSpace(c.Roulette.Item))
	if c.Roulette.Item == "" {
		c.Roulette.Item = def.Roulette.Item
	}
	if c.Roulette.SpinSeconds <= 0 {
		c.Roulette.SpinSeconds = def.Roulette.SpinSeconds
	}
	if c.Roulette.AnimationMillis <= 0 {
		c.Roulette.AnimationMillis = def.Roulette.AnimationMillis
	}
	if strings.TrimSpace(c.Backup.Cron) == "" {
		c.Backup.Cron = def.Backup.Cron
	}
	if c.Backup.Directory == "" {
		c.Backup.Directory = def.Backup.Directory
	}
}

func (c Config) Validate() error {
	if strings.ContainsAny(c.Roulette.Item, " \t\"") {
		return fmt.Errorf("roulette item %q is not an item identifier", c.Roulette.Item)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup keep must not be negative, got %d", c.Backup.Keep)
	}
	if n := len(strings.Fields(c.Backup.Cron)); n != 5 {
		return fmt.Errorf("backup cron %q must have 5 fields, got %d", c.Backup.Cron, n)
	}
	return nil
}

func (c Config) RankExpiryInterval() time.Duration {
	return time.Duration(c.Rank.ExpiryIntervalSeconds) * time.Second
}

func (c Config) SpinDuration() time.Duration {
	return time.Duration(c.Roulette.SpinSeconds) * time.Second
}

func (c Config) AnimationInterval() time.Duration {
	return time.Duration(c.Roulette.AnimationMillis) * time.Millisecond
}
