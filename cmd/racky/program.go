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

// newProgramCmd wires one subcommand per /program/* route.
func newProgramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Run and manage programs on a racky server",
	}
	cmd.AddCommand(
		newProgramAddCmd(),
		newProgramUpdateCmd(),
		newProgramRemoveCmd(),
		newProgramStartCmd(),
		newProgramStopCmd(),
		newProgramRestartCmd(),
		newProgramStatusCmd(),
		newProgramLogsCmd(),
		newProgramConfigCmd(),
	)
	return cmd
}

func newProgramAddCmd() *cobra.Command {
	var server string
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a new program to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := paths.FromPath(args[0]); !ok {
				return notAValidProgram(args[0])
			}

			_, archivePath, cleanup, err := client.PackPath(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).
				File("file", archivePath).
				Text("auto_start", autoStart).
				Post("program/add")
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
	cmd.Flags().BoolVarP(&autoStart, "auto-start", "a", false, "automatically start the program")
	return cmd
}

func newProgramUpdateCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "update <path>",
		Short: "Update a program on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := paths.FromPath(args[0]); !ok {
				return notAValidProgram(args[0])
			}

			_, archivePath, cleanup, err := client.PackPath(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).File("file", archivePath).Post("program/update")
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

func simpleProgramCmd(use, short, route string) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   use + " <program>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).Text("program", args[0]).Post(route)
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

func newProgramRemoveCmd() *cobra.Command {
	return simpleProgramCmd("remove", "Remove a program from the server", "program/remove")
}

func newProgramStartCmd() *cobra.Command {
	return simpleProgramCmd("start", "Start a program on the server", "program/start")
}

func newProgramStopCmd() *cobra.Command {
	return simpleProgramCmd("stop", "Stop a program on the server", "program/stop")
}

func newProgramRestartCmd() *cobra.Command {
	return simpleProgramCmd("restart", "Restart a program on the server", "program/restart")
}

func newProgramStatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status <program>",
		Short: "Get the status of a program on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).Text("program", args[0]).Get("program/status")
			if err != nil {
				return err
			}
			body, err := resp.WithPrefix("Program status:\n").Handle()
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

func newProgramLogsCmd() *cobra.Command {
	var server string
	var page int

	cmd := &cobra.Command{
		Use:   "logs <program>",
		Short: "Read logs of a program from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).
				Text("program", args[0]).
				Text("page", strconv.Itoa(page)).
				Get("program/logs")
			if err != nil {
				return err
			}
			body, err := resp.WithPrefix("Program logs:\n").Handle()
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

func newProgramConfigCmd() *cobra.Command {
	var server string
	var useDefault bool
	var list bool

	cmd := &cobra.Command{
		Use:   "config <program> [key=value ...]",
		Short: "Update or list program configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveServer(server)
			if err != nil {
				return err
			}
			resp, err := client.New(s).
				Text("program", args[0]).
				Text("data", strings.Join(args[1:], ",")).
				Text("default", useDefault).
				Text("list", list).
				Post("program/config")
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
