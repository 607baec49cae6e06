package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rescp17/lanDiscovery/internal/util"
	"github.com/rescp17/lanDiscovery/pkg/browser"
	"github.com/rescp17/lanDiscovery/pkg/discovery"
	"github.com/rescp17/lanDiscovery/pkg/ui"
)

var columnWidths = []int{1, 32, 20, 10, 6}

func newBrowseCmd(opts *options) *cobra.Command {
	var (
		tui           bool
		timeout       time.Duration
		noAutoResolve bool
	)

	cmd := &cobra.Command{
		Use:   "browse [service-type]",
		Short: "Browse for services of a type, e.g. _ipp._tcp",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceType := discovery.DefaultServiceType
			if len(args) == 1 {
				serviceType = args[0]
			}

			if tui {
				// Keep logs off the terminal the TUI draws on.
				f, err := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer f.Close()
				setupLogging(f, opts.debug)
			}

			opts.noAutoResolve = noAutoResolve
			m, cfg, cleanup, err := openManager(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			if tui {
				app := browser.NewApp(m, serviceType)
				app.SetResolveTimeout(cfg.ResolveTimeout)
				p := tea.NewProgram(ui.InitialModel(app, serviceType), tea.WithContext(cmd.Context()))
				_, err := p.Run()
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return browsePlain(ctx, cmd.OutOrStdout(), m, serviceType)
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "show a live table instead of a log of events")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop browsing after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&noAutoResolve, "no-auto-resolve", false, "report browsed services without resolving them")
	return cmd
}

// browsePlain prints one line per browsed (+) and resolved (=) service
// until ctx is done.
func browsePlain(ctx context.Context, out io.Writer, m *discovery.Manager, serviceType string) error {
	var mu sync.Mutex
	printLine := func(cells ...string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, util.Columns(columnWidths, cells...))
	}

	err := m.DiscoverServices(serviceType, discovery.DiscoveryListeners{
		Browsed: func(s discovery.BrowsedServiceDescription) {
			printLine("+", s.Name, s.TypeName, interfaceName(s.Interface), s.Protocol.String(), s.Domain)
		},
		Resolved: func(s discovery.ServiceDescription) {
			printLine("=", s.Name, s.HostName, interfaceName(s.Interface), s.Protocol.String(),
				net.JoinHostPort(s.Address, strconv.Itoa(int(s.Port))))
		},
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return m.StopServiceDiscovery()
}

func interfaceName(index int) string {
	if index <= 0 {
		return "any"
	}
	if iface, err := net.InterfaceByIndex(index); err == nil {
		return iface.Name
	}
	return strconv.Itoa(index)
}
