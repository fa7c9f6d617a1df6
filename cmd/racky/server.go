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
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DervexDev/racky/internal/client"
	"github.com/DervexDev/racky/internal/paths"
)

// newServerCmd wires one subcommand per /server/* route. Distinct from
// "servers", which edits the local alias book rather than calling the
// façade.
func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Inspect and control a racky server over HTTP",
	}
	cmd.AddCommand(
		newServerStatusCmd(),
		newServerLogsCmd(),
		newServerConfigCmd(),
		newServerLifecycleCmd("shutdown", "Shutdown the server (hardware)",
			"Are you sure you want to shutdown the server? This will shutdown the actual hardware and you will need to start it manually to use Racky again!"),
		newServerLifecycleCmd("reboot", "Reboot the server", ""),
		newServerLifecycleCmd("restart", "Restart the server (software)",
			"Are you sure you want to restart the server? This will only restart the system service but you may still need to wait a few seconds before you can use Racky again!"),
		newServerLifecycleCmd("stop", "Stop the server (software)",
			"Are you sure you want to stop the server? This will only stop the system service but you will need to start it manually to use Racky again!"),
		newServerUpdateCmd(),
	)
	return cmd
}

func newServerStatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Get the status of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).Get("server/status")
			if err != nil {
				return err
			}
			body, err := resp.WithPrefix("Server status:\n").Handle()
			if err != nil {
				return err
			}
			logrus.Info(body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "target server alias")
	return cmd
}

func newServerLogsCmd() *cobra.Command {
	var server string
	var page int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read logs from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).Text("page", strconv.Itoa(page)).Get("server/logs")
			if err != nil {
				return err
			}
			body, err := resp.WithPrefix("Server logs:\n").Handle()
			if err != nil {
				return err
			}
			logrus.Info(body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "target server alias")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "page number (higher values mean older logs)")
	return cmd
}

func newServerConfigCmd() *cobra.Command {
	var server string
	var useDefault bool
	var list bool

	cmd := &cobra.Command{
		Use:   "config [key=value ...]",
		Short: "Update or list server configuration",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).
				Text("data", strings.Join(args, ",")).
				Text("default", useDefault).
				Text("list", list).
				Post("server/config")
			if err != nil {
				return err
			}
			body, err := resp.Handle()
			if err != nil {
				return err
			}
			logrus.Info(body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "target server alias")
	cmd.Flags().BoolVarP(&useDefault, "default", "d", false, "restore all settings to their default values")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list current configuration")
	return cmd
}

// newServerLifecycleCmd builds one of the argument-less OS/process
// lifecycle subcommands (shutdown/reboot/restart/stop). A non-empty prompt
// gates the call behind confirm(), skipped when --yes or RUST_YES is set.
func newServerLifecycleCmd(action, short, prompt string) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt != "" && !confirm(prompt) {
				return nil
			}
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).Post("server/" + action)
			if err != nil {
				return err
			}
			body, err := resp.Handle()
			if err != nil {
				return err
			}
			logrus.Info(body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "target server alias")
	return cmd
}

// newServerUpdateCmd uploads a new server binary, rooted at the server's
// reserved name regardless of the local file's own name, for
// internal/zipper.ReplaceAtomically to swap into bin/racky.
func newServerUpdateCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "update <path>",
		Short: "Update the server to a new binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath, cleanup, err := client.PackPathAs(args[0], paths.Reserved)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).File("file", archivePath).Post("server/update")
			if err != nil {
				return err
			}
			body, err := resp.Handle()
			if err != nil {
				return err
			}
			logrus.Info(body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "target server alias")
	return cmd
}
