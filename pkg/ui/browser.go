package ui

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/lanDiscovery/internal/app_events"
	browserEvent "github.com/rescp17/lanDiscovery/internal/app_events/browser"
	"github.com/rescp17/lanDiscovery/internal/style"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleAppEvent(msg); processed {
		return m, cmd
	}

	var cmds []tea.Cmd
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			m.status = "Refreshing..."
			m.err = nil
			cmds = append(cmds, m.sendEvent(browserEvent.RefreshMsg{}))
		case key.Matches(msg, keys.Resolve):
			if cmd := m.resolveSelected(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}

	if m.state == listingServices {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	var spinCmd tea.Cmd
	m.spinner, spinCmd = m.spinner.Update(msg)
	cmds = append(cmds, spinCmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handleAppEvent(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case browserEvent.FoundServicesMsg:
		slog.Debug("Discovery update", "service_count", len(msg.Services))

		if len(msg.Services) > 0 && m.state == findingServices {
			m.state = listingServices
		}
		// If the list of services becomes empty, go back to the finding state.
		if len(msg.Services) == 0 && m.state == listingServices {
			m.state = findingServices
		}

		m.updateServiceTable(msg.Services)
		return m.listenForAppMessages(), true // Continue listening
	case browserEvent.StatusUpdateMsg:
		m.status = msg.Message
		return m.listenForAppMessages(), true
	case appevents.AppErrorMsg:
		m.err = msg.Err
		return m.listenForAppMessages(), true
	case appStoppedMsg:
		if msg.err != nil {
			m.state = browseFailed
			m.err = msg.err
			return nil, true
		}
		return tea.Quit, true
	}
	return nil, false
}

func (m *model) updateServiceTable(services []browserEvent.Service) {
	m.services = services
	rows := make([]table.Row, 0, len(services))
	for index, svc := range services {
		address, port := "resolving...", ""
		if svc.Resolved() {
			address = strings.Join(svc.Addresses, ", ")
			port = strconv.Itoa(int(svc.Port))
		}
		rows = append(rows, table.Row{
			strconv.Itoa(index), svc.Name, svc.HostName, address, port,
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

// resolveSelected asks the app to resolve the service under the cursor.
func (m *model) resolveSelected() tea.Cmd {
	if m.state != listingServices || len(m.services) == 0 {
		return nil
	}
	selectedIndex := m.table.Cursor()
	if selectedIndex < 0 || selectedIndex >= len(m.services) {
		err := fmt.Errorf("internal error: cursor %d is out of sync with services list (len %d)", selectedIndex, len(m.services))
		slog.Error("Cursor out of sync", "error", err)
		m.err = err
		return nil
	}
	m.err = nil
	selected := m.services[selectedIndex]
	return m.sendEvent(browserEvent.ResolveMsg{Service: selected.BrowsedServiceDescription})
}

func (m model) browserView() string {
	var s string
	switch m.state {
	case findingServices:
		s = fmt.Sprintf("\n%s Browsing for %s...\n", m.spinner.View(), style.HighlightFontStyle.Render(m.serviceType))
	case listingServices:
		resolved := 0
		for _, svc := range m.services {
			if svc.Resolved() {
				resolved++
			}
		}
		s = fmt.Sprintf("\n%s %s: %d service(s), %s\n",
			style.TitleStyle.Render("✔"), m.serviceType, len(m.services),
			style.ResolvedStyle.Render(fmt.Sprintf("%d resolved", resolved)))
		s += style.BaseStyle.Render(m.table.View()) + "\n"
	case browseFailed:
		s = "\nBrowsing stopped.\n"
	default:
		return "Internal error: unknown browser state"
	}

	if m.status != "" {
		s += style.PendingStyle.Render(m.status) + "\n"
	}
	if m.err != nil {
		s += style.ErrorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	return s
}
