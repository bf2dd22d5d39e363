/*
 * Copyright 2025 SREDiag Authors
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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/stress"
)

const instrumentationName = "github.com/srediag/fetchop"

// rawFlags holds the command line before it is layered over the config file.
type rawFlags struct {
	configPath string
	workers    int
	width      string
	cells      string
	shmName    string
	iterations int
	rounds     int
	scenarios  []string
	report     string
	listen     string
	logLevel   int
}

func (raw *rawFlags) register(fs *pflag.FlagSet) {
	def := stress.DefaultConfig()
	fs.StringVar(&raw.configPath, "config", "", "JSON config file, comments and trailing commas allowed")
	fs.IntVar(&raw.workers, "workers", def.Workers, "number of contending threads")
	fs.StringVar(&raw.width, "width", string(def.Width), "word width: 32, 64 or native")
	fs.StringVar(&raw.cells, "cells", string(def.Cells), "cell placement: heap or shm")
	fs.StringVar(&raw.shmName, "shm-name", "", "name under /dev/shm for shm cells; empty uses an anonymous memfd")
	fs.IntVar(&raw.iterations, "iterations", 0, "per-worker iterations, 0 keeps each scenario's default")
	fs.IntVar(&raw.rounds, "rounds", 0, "repetitions per scenario, 0 keeps each scenario's default")
	fs.StringSliceVar(&raw.scenarios, "scenario", nil, "run only the named scenarios (repeatable)")
	fs.StringVar(&raw.report, "report", "", "write a JSON report to this path")
	fs.StringVar(&raw.listen, "listen", def.ListenAddr, "metrics and health address for serve")
	fs.IntVar(&raw.logLevel, "log-level", def.LogLevel, "0 trace, 1 debug, 2 info, 3 warn, 4 error, 5 silent")
}

// cook layers defaults, the config file and the flags that were set.
func (raw *rawFlags) cook(fs *pflag.FlagSet) (*stress.Config, error) {
	config := stress.DefaultConfig()
	if raw.configPath != "" {
		if err := stress.LoadConfigFile(config, raw.configPath); err != nil {
			return nil, err
		}
	}
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("workers", func() { config.Workers = raw.workers })
	set("width", func() { config.Width = stress.Width(raw.width) })
	set("cells", func() { config.Cells = stress.CellSource(raw.cells) })
	set("shm-name", func() { config.ShmName = raw.shmName })
	set("iterations", func() { config.Iterations = raw.iterations })
	set("rounds", func() { config.Rounds = raw.rounds })
	set("scenario", func() { config.Scenarios = raw.scenarios })
	set("report", func() { config.ReportPath = raw.report })
	set("listen", func() { config.ListenAddr = raw.listen })
	set("log-level", func() { config.LogLevel = raw.logLevel })

	if err := stress.VerifyConfig(config); err != nil {
		return nil, err
	}
	logging.SetLevel(config.LogLevel)
	return config, nil
}

func newRootCmd() *cobra.Command {
	raw := &rawFlags{}
	root := &cobra.Command{
		Use:   "fetchop-stress",
		Short: "Stress atomic fetch-and-op operations under contention",
		Long: `fetchop-stress hammers one shared word from many OS threads with
fetch-and-add, sub, or, and, xor and nand, then checks the final value
against the value a sequential execution would produce.`,
		SilenceUsage: true,
	}
	raw.register(root.PersistentFlags())

	config := func(cmd *cobra.Command) (*stress.Config, error) {
		c, err := raw.cook(cmd.Flags())
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return c, nil
	}
	root.AddCommand(newRunCmd(config), newServeCmd(config), newListCmd(config))
	return root
}

func runnerOptions() []stress.Option {
	return []stress.Option{
		stress.WithMeter(otel.GetMeterProvider().Meter(instrumentationName)),
		stress.WithTracer(otel.GetTracerProvider().Tracer(instrumentationName)),
	}
}
