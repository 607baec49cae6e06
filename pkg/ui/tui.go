package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/lanDiscovery/internal/app_events"
	browserEvent "github.com/rescp17/lanDiscovery/internal/app_events/browser"
	"github.com/rescp17/lanDiscovery/internal/style"
)

// AppController defines the contract between the UI and the backend application logic.
type AppController interface {
	// Run starts the backend services and the event loop.
	Run(ctx context.Context) error

	// UIMessages returns a read-only channel for receiving messages from the backend to the UI.
	UIMessages() <-chan tea.Msg

	// AppEvents returns a write-only channel for the UI to send events to the backend.
	AppEvents() chan<- appevents.AppEvent
}

// browserState defines the different states of the browser UI.
type browserState int

const (
	findingServices browserState = iota
	listingServices
	browseFailed
)

// appStoppedMsg is sent when the App's Run returns.
type appStoppedMsg struct {
	err error
}

type model struct {
	appController AppController
	serviceType   string
	ctx           context.Context
	cancel        context.CancelFunc

	state    browserState
	spinner  spinner.Model
	table    table.Model
	help     help.Model
	services []browserEvent.Service
	status   string
	err      error
}

var columns = []table.Column{
	{Title: "Index", Width: 6},
	{Title: "Name", Width: 28},
	{Title: "Host", Width: 24},
	{Title: "Address", Width: 28},
	{Title: "Port", Width: 6},
}

// InitialModel returns the browser UI for serviceType driven by app.
func InitialModel(app AppController, serviceType string) model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(0),
	)
	t.SetStyles(style.NewTableStyles())

	ctx, cancel := context.WithCancel(context.Background())
	return model{
		appController: app,
		serviceType:   serviceType,
		ctx:           ctx,
		cancel:        cancel,
		state:         findingServices,
		spinner:       style.NewSpinner(),
		table:         t,
		help:          help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp(), m.listenForAppMessages())
}

// runApp runs the controller for the lifetime of the program.
func (m model) runApp() tea.Cmd {
	app, ctx := m.appController, m.ctx
	return func() tea.Msg {
		return appStoppedMsg{err: app.Run(ctx)}
	}
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m model) listenForAppMessages() tea.Cmd {
	ch, ctx := m.appController.UIMessages(), m.ctx
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// sendEvent hands an event to the app without blocking the UI.
func (m model) sendEvent(ev appevents.AppEvent) tea.Cmd {
	events, ctx := m.appController.AppEvents(), m.ctx
	return func() tea.Msg {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
		return nil
	}
}

func (m model) View() string {
	s := m.browserView()
	s += "\n" + m.help.View(keys)
	return s
}
