package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanDiscovery/pkg/discovery"
)

var errResolveTimeout = errors.New("no answer before the resolve timeout")

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name> <service-type>",
		Short: "Resolve one service instance to its host, address and port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, cleanup, err := openManager(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResolveTimeout)
			defer cancel()

			s, err := resolveOnce(ctx, m, discovery.ServiceDescription{
				Name:      args[0],
				TypeName:  args[1],
				Domain:    cfg.Domain,
				Interface: cfg.Interface,
				Protocol:  cfg.Protocol,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.Name, s.HostName,
				net.JoinHostPort(s.Address, strconv.Itoa(int(s.Port))))
			return nil
		},
	}
}

// resolveOnce waits for the first resolution of service or for ctx.
func resolveOnce(ctx context.Context, m *discovery.Manager, service discovery.ServiceDescription) (discovery.ServiceDescription, error) {
	found := make(chan discovery.ServiceDescription, 1)
	err := m.ResolveService(service, discovery.ResolveListeners{
		Resolved: func(s discovery.ServiceDescription) {
			select {
			case found <- s:
			default:
			}
		},
	})
	if err != nil {
		return discovery.ServiceDescription{}, err
	}

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return discovery.ServiceDescription{}, fmt.Errorf("%s: %w", service.Name, errResolveTimeout)
		}
		return discovery.ServiceDescription{}, ctx.Err()
	}
}
