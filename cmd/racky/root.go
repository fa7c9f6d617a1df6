/*
Copyright 2021 k0s authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// flags holds the global options every subcommand inherits: --yes/
// --backtrace/--color plus verbosity, each overridable by its RUST_* env
// var (RUST_YES, RUST_BACKTRACE, RUST_LOG_STYLE, RUST_VERBOSE) for
// non-interactive automation.
type flags struct {
	yes       bool
	backtrace bool
	color     string
	verbose   int
}

var globalFlags flags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "racky",
		Short:         "Racky client — manage programs on a racky-server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveGlobalsFromEnv()
			configureLogging()
		},
	}

	root.PersistentFlags().BoolVarP(&globalFlags.yes, "yes", "y", false, "automatically answer yes to any prompts")
	root.PersistentFlags().BoolVarP(&globalFlags.backtrace, "backtrace", "B", false, "print a full error chain on failure")
	root.PersistentFlags().StringVarP(&globalFlags.color, "color", "C", "auto", "output coloring: auto, always, never")
	root.PersistentFlags().CountVarP(&globalFlags.verbose, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")

	root.AddCommand(newProgramCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newServersCmd())

	return root
}

// resolveGlobalsFromEnv lets RUST_YES/RUST_BACKTRACE/RUST_LOG_STYLE/
// RUST_VERBOSE override the parsed flags, for scripted/CI use.
func resolveGlobalsFromEnv() {
	if v, ok := os.LookupEnv("RUST_YES"); ok {
		globalFlags.yes = envBool(v)
	}
	if v, ok := os.LookupEnv("RUST_BACKTRACE"); ok {
		globalFlags.backtrace = envBool(v)
	}
	if v, ok := os.LookupEnv("RUST_LOG_STYLE"); ok {
		globalFlags.color = v
	}
	if v, ok := os.LookupEnv("RUST_VERBOSE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			globalFlags.verbose = n
		}
	}
}

func envBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func configureLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case globalFlags.verbose >= 2:
		logrus.SetLevel(logrus.TraceLevel)
	case globalFlags.verbose == 1:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// confirm prompts for a yes/no answer, auto-approving when --yes (or
// RUST_YES) is set, matching the original's non-interactive override.
func confirm(prompt string) bool {
	if globalFlags.yes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	_, _ = fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
