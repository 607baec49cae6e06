package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanDiscovery/pkg/discovery"
)

var errNoHostName = errors.New("host name is not available from this backend")

func newHostnameCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostname",
		Short: "Show the host name advertised on the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, cleanup, err := openManager(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			name, ok := m.GetHostName()
			if !ok {
				return errNoHostName
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Ask the daemon to advertise a new host name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, cleanup, err := openManager(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			return m.SetHostName(args[0])
		},
	})

	// check and alternative never talk to a daemon.
	pure := discovery.NewManagerWithWrapper(discovery.NewFakeWrapper())

	cmd.AddCommand(&cobra.Command{
		Use:   "check <name>",
		Short: "Check whether a name can be used as a host name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !pure.IsValidHostName(args[0]) {
				return fmt.Errorf("%w: %q", discovery.ErrInvalidHostName, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q is a valid host name\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "alternative <name>",
		Short: "Suggest the next host name to try after a collision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), pure.GetAlternativeHostName(args[0]))
			return nil
		},
	})
	return cmd
}
