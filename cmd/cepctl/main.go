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

// cepctl runs a streamcep plan over JSON lines and inspects stored revisions.
package main

import (
	"fmt"
	"os"

	"github.com/rulego/streamcep/logger"
	"github.com/rulego/streamcep/types"
	"github.com/spf13/cobra"
)

var version = "dev"

// global flags
var (
	configFile string
	logLevel   string
	jsonLog    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cepctl",
		Short:         "Run continuous queries and manage their revisions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "runtime config file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	root.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "write logs as JSON lines")

	root.AddCommand(newRunCmd(), newRevisionsCmd(), newInspectCmd())
	return root
}

// loadConfig reads --config on top of the defaults and applies --log-level.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = types.LoadConfig(configFile); err != nil {
			return cfg, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg types.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if jsonLog {
		return logger.NewJSONLogger(level, os.Stderr), nil
	}
	return logger.NewLogger(level, os.Stderr), nil
}
