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
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DervexDev/racky/internal/client"
	"github.com/DervexDev/racky/internal/rackyerr"
)

// newServersCmd manages the client-local alias book (servers.toml).
// Distinct from the "server" command group, which talks over HTTP to a
// chosen alias.
func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage saved server aliases",
	}
	cmd.AddCommand(newServersAddCmd(), newServersRemoveCmd(), newServersListCmd(), newServersUpdateCmd())
	return cmd
}

func newServersAddCmd() *cobra.Command {
	var address string
	var port uint64
	var password string

	cmd := &cobra.Command{
		Use:   "add <alias>",
		Short: "Save a new server alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			book, err := loadBook()
			if err != nil {
				return err
			}
			if _, exists := book[alias]; exists {
				return rackyerr.Conflict("server with alias %s already exists", alias)
			}
			for _, s := range book {
				if s.Address == address && s.Port == port {
					return rackyerr.Conflict("server with address %s and port %d already exists", address, port)
				}
			}

			book[alias] = client.Server{
				Address:  address,
				Port:     port,
				Password: password,
				Default:  !book.HasDefault(),
			}
			if err := saveBook(book); err != nil {
				return err
			}
			logrus.Infof("server %s with URL http://%s:%d added successfully", alias, address, port)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "A", "127.0.0.1", "server address")
	cmd.Flags().Uint64VarP(&port, "port", "P", 8000, "server port")
	cmd.Flags().StringVarP(&password, "password", "p", "", "server password")
	return cmd
}

func newServersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a saved server alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			book, err := loadBook()
			if err != nil {
				return err
			}
			if _, exists := book[alias]; !exists {
				return rackyerr.NotFound("server with alias %s does not exist", alias)
			}
			delete(book, alias)
			if err := saveBook(book); err != nil {
				return err
			}
			logrus.Infof("server %s removed successfully", alias)
			return nil
		},
	}
}

func newServersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved server aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := loadBook()
			if err != nil {
				return err
			}
			if len(book) == 0 {
				return rackyerr.NotFound("there are no saved racky servers")
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Alias", "Address", "Port", "Password", "Default"})
			for alias, s := range book {
				table.Append([]string{alias, s.Address, strconv.FormatUint(s.Port, 10), s.Password, fmt.Sprintf("%t", s.Default)})
			}
			table.Render()
			return nil
		},
	}
}

// newServersUpdateCmd edits a saved alias entry in place: only flags
// explicitly passed change anything, and --default refuses to create a
// second default.
func newServersUpdateCmd() *cobra.Command {
	var newAlias, address, password string
	var port uint64
	var setDefault bool

	cmd := &cobra.Command{
		Use:   "update <alias>",
		Short: "Update a saved server alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			book, err := loadBook()
			if err != nil {
				return err
			}
			s, exists := book[alias]
			if !exists {
				return rackyerr.NotFound("server with alias %s does not exist", alias)
			}
			delete(book, alias)

			updated := false
			if cmd.Flags().Changed("address") {
				s.Address, updated = address, true
			}
			if cmd.Flags().Changed("port") {
				s.Port, updated = port, true
			}
			if cmd.Flags().Changed("password") {
				s.Password, updated = password, true
			}
			if cmd.Flags().Changed("default") {
				if setDefault && book.HasDefault() {
					return rackyerr.Conflict("a default server already exists")
				}
				s.Default, updated = setDefault, true
			}
			if cmd.Flags().Changed("alias") {
				alias, updated = newAlias, true
			}

			if !updated {
				return rackyerr.InvalidInput("no changes detected")
			}

			book[alias] = s
			if err := saveBook(book); err != nil {
				return err
			}
			logrus.Infof("server %s updated successfully", alias)
			return nil
		},
	}

	cmd.Flags().StringVarP(&newAlias, "alias", "a", "", "new server alias")
	cmd.Flags().StringVarP(&address, "address", "A", "", "new server address")
	cmd.Flags().Uint64VarP(&port, "port", "P", 0, "new server port")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new server password")
	cmd.Flags().BoolVarP(&setDefault, "default", "d", false, "set the server as default")
	return cmd
}
