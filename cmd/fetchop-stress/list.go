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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srediag/fetchop/pkg/stress"
)

func newListCmd(config func(*cobra.Command) (*stress.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the configured scenarios and their expected values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			plan, err := stress.Plan(c)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENARIO\tOP\tWIDTH\tWORKERS\tITERATIONS\tROUNDS\tINITIAL\tEXPECTED")
			for _, e := range plan {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
					e.Name, e.Op, e.Width, e.Workers, e.Iterations, e.Rounds, e.Initial, e.Expected)
			}
			return tw.Flush()
		},
	}
}
