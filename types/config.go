/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names
const (
	StoreNone   = ""
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config 运行时配置
type Config struct {
	// MailboxSize is the initial capacity of each pipeline mailbox. The
	// mailbox grows past it; producers never block.
	MailboxSize int `json:"mailboxSize" yaml:"mailboxSize"`
	// PersistTimeout bounds a persist or restore call.
	PersistTimeout time.Duration `json:"persistTimeout" yaml:"persistTimeout"`
	// LogLevel is one of debug, info, warn, error, off.
	LogLevel string      `json:"logLevel" yaml:"logLevel"`
	Store    StoreConfig `json:"store" yaml:"store"`
}

// StoreConfig 持久化存储配置
type StoreConfig struct {
	Type  string      `json:"type" yaml:"type"`
	Path  string      `json:"path" yaml:"path"` // bolt / sqlite file
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis revision store.
type RedisConfig struct {
	Address  string        `json:"address" yaml:"address"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default runtime configuration with no store.
func DefaultConfig() Config {
	return Config{
		MailboxSize:    1024,
		PersistTimeout: 30 * time.Second,
		LogLevel:       "info",
		Store: StoreConfig{
			Redis: RedisConfig{
				Prefix:  "streamcep:",
				Timeout: 5 * time.Second,
			},
		},
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.MailboxSize <= 0 {
		return fmt.Errorf("mailboxSize must be positive, got %d", c.MailboxSize)
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("persistTimeout must be positive, got %s", c.PersistTimeout)
	}
	switch c.Store.Type {
	case StoreNone, StoreMemory:
	case StoreBolt, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%s store requires a path", c.Store.Type)
		}
	case StoreRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("redis store requires an address")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
