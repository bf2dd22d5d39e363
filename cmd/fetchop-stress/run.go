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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/stress"
)

func newRunCmd(config func(*cobra.Command) (*stress.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scenarios once and stop at the first mismatch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := stress.NewRunner(ctx, c, runnerOptions()...)
			if err != nil {
				return err
			}
			defer func() {
				if err := r.Close(ctx); err != nil {
					logging.Default.Warnf("close runner: %v", err)
				}
			}()

			runErr := r.Execute(ctx)
			if err := stress.RenderText(cmd.OutOrStdout(), r.Results()); err != nil {
				return err
			}
			if c.ReportPath != "" {
				if err := stress.WriteReport(c.ReportPath, r.Report()); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}
