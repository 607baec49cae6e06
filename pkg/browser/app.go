package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appevents "github.com/rescp17/lanDiscovery/internal/app_events"
	browserEvent "github.com/rescp17/lanDiscovery/internal/app_events/browser"
	"github.com/rescp17/lanDiscovery/pkg/concurrency"
	"github.com/rescp17/lanDiscovery/pkg/discovery"
)

// ErrResolveTimeout is reported when an explicit resolve gets no answer.
var ErrResolveTimeout = errors.New("resolve timed out")

// App is the logic controller behind the service browser UI. It runs
// one browse through the Manager and keeps every service it reported.
type App struct {
	sessionID      string
	serviceType    string
	manager        *discovery.Manager
	guard          *concurrency.ConcurrencyGuard
	uiMessages     chan tea.Msg            // App -> TUI
	appEvents      chan appevents.AppEvent // TUI -> App
	updates        chan struct{}
	resolveTimeout time.Duration
	resolveWG      sync.WaitGroup
	logger         *slog.Logger

	mu         sync.Mutex
	services   map[string]*browserEvent.Service
	generation uint64 // bumped by every refresh
}

// NewApp creates a browser for serviceType on top of manager. The
// caller keeps ownership of manager.
func NewApp(manager *discovery.Manager, serviceType string) *App {
	sessionID := uuid.New().String()
	return &App{
		sessionID:      sessionID,
		serviceType:    serviceType,
		manager:        manager,
		guard:          concurrency.NewConcurrencyGuard(),
		uiMessages:     make(chan tea.Msg, 10),
		appEvents:      make(chan appevents.AppEvent),
		updates:        make(chan struct{}, 1),
		resolveTimeout: 5 * time.Second,
		logger:         slog.Default().With("session", sessionID),
		services:       make(map[string]*browserEvent.Service),
	}
}

// SetResolveTimeout bounds explicit resolves started from the UI.
func (a *App) SetResolveTimeout(d time.Duration) {
	a.resolveTimeout = d
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run browses until ctx is done or the UI sends a QuitEvent.
func (a *App) Run(ctx context.Context) error {
	if err := a.manager.DiscoverServices(a.serviceType, a.handler()); err != nil {
		a.sendAndLogError(ctx, "Failed to start discovery", err)
		return err
	}
	a.logger.Info("Browsing", "type", a.serviceType)
	defer func() {
		if err := a.manager.StopServiceDiscovery(); err != nil {
			a.logger.Warn("Failed to stop discovery", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.publish(ctx)
	})

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				// Wait for any explicit resolve to finish
				a.resolveWG.Wait()
				return nil
			case event := <-a.appEvents:
				switch e := event.(type) {
				case browserEvent.ResolveMsg:
					a.StartResolve(ctx, e.Service)
				case browserEvent.RefreshMsg:
					if err := a.refresh(ctx); err != nil {
						return err
					}
				case appevents.QuitEvent:
					a.resolveWG.Wait()
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// browseHandler receives the results of one browse. Results that
// arrive after a refresh started a newer browse are dropped.
type browseHandler struct {
	app        *App
	generation uint64
}

// handler returns the handler for the current browse.
func (a *App) handler() browseHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return browseHandler{app: a, generation: a.generation}
}

// OnServiceBrowsed records a new instance. It runs on the discovery
// event goroutine and never blocks.
func (h browseHandler) OnServiceBrowsed(s discovery.BrowsedServiceDescription) {
	a := h.app
	a.mu.Lock()
	if h.generation != a.generation {
		a.mu.Unlock()
		return
	}
	if _, ok := a.services[s.Key()]; !ok {
		a.services[s.Key()] = &browserEvent.Service{BrowsedServiceDescription: s}
	}
	a.mu.Unlock()
	a.logger.Debug("Found service", "name", s.Name, "type", s.TypeName, "interface", s.Interface)
	a.notify()
}

// OnServiceResolved adds the address of a resolved instance.
func (h browseHandler) OnServiceResolved(s discovery.ServiceDescription) {
	a := h.app
	a.mu.Lock()
	if h.generation != a.generation {
		a.mu.Unlock()
		a.logger.Debug("Dropping stale resolution", "name", s.Name)
		return
	}
	entry, ok := a.services[s.Key()]
	if !ok {
		entry = &browserEvent.Service{BrowsedServiceDescription: s.Browsed()}
		a.services[s.Key()] = entry
	}
	entry.HostName = s.HostName
	entry.Port = s.Port
	if !slices.Contains(entry.Addresses, s.Address) {
		entry.Addresses = append(entry.Addresses, s.Address)
	}
	a.mu.Unlock()
	a.logger.Debug("Resolved service", "name", s.Name, "addr", s.Address, "port", s.Port)
	a.notify()
}

func (a *App) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

// Services returns a snapshot of every known service, sorted by name.
func (a *App) Services() []browserEvent.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]browserEvent.Service, 0, len(a.services))
	for _, s := range a.services {
		c := *s
		c.Addresses = slices.Clone(s.Addresses)
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y browserEvent.Service) int {
		if c := strings.Compare(x.Name, y.Name); c != 0 {
			return c
		}
		return strings.Compare(x.Key(), y.Key())
	})
	return out
}

// publish turns change notifications into snapshots for the UI.
// Notifications that arrive while the UI is busy are coalesced.
func (a *App) publish(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.updates:
			if !a.send(ctx, browserEvent.FoundServicesMsg{Services: a.Services()}) {
				return nil
			}
		}
	}
}

func (a *App) refresh(ctx context.Context) error {
	a.mu.Lock()
	a.generation++
	clear(a.services)
	a.mu.Unlock()
	a.notify()

	if err := a.manager.StopServiceDiscovery(); err != nil {
		a.logger.Warn("Failed to stop discovery", "error", err)
	}
	if err := a.manager.DiscoverServices(a.serviceType, a.handler()); err != nil {
		a.sendAndLogError(ctx, "Failed to restart discovery", err)
		return err
	}
	a.send(ctx, browserEvent.StatusUpdateMsg{Message: "Browsing again..."})
	return nil
}

// StartResolve resolves service in the background. Only one explicit
// resolve runs at a time.
func (a *App) StartResolve(ctx context.Context, service discovery.BrowsedServiceDescription) {
	h := a.handler()
	task := func(taskCtx context.Context) error {
		resolveCtx, cancel := context.WithTimeout(taskCtx, a.resolveTimeout)
		defer cancel()

		a.send(resolveCtx, browserEvent.StatusUpdateMsg{Message: fmt.Sprintf("Resolving %s...", service.Name)})

		found := make(chan discovery.ServiceDescription, 1)
		err := a.manager.ResolveService(discovery.ServiceDescription{
			Domain:    service.Domain,
			Name:      service.Name,
			TypeName:  service.TypeName,
			Interface: service.Interface,
			Protocol:  service.Protocol,
		}, discovery.ResolveListeners{Resolved: func(s discovery.ServiceDescription) {
			select {
			case found <- s:
			default:
			}
		}})
		if err != nil {
			return err
		}

		select {
		case s := <-found:
			h.OnServiceResolved(s)
			a.send(taskCtx, browserEvent.StatusUpdateMsg{
				Message: fmt.Sprintf("%s is at %s port %d", s.Name, s.Address, s.Port),
			})
			return nil
		case <-resolveCtx.Done():
			if taskCtx.Err() != nil {
				return taskCtx.Err()
			}
			return fmt.Errorf("%w: %s", ErrResolveTimeout, service.Name)
		}
	}

	a.resolveWG.Add(1)
	go func() {
		defer a.resolveWG.Done()
		err := a.guard.ExecuteWithContext(ctx, task)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, concurrency.ErrBusy):
			a.sendAndLogError(ctx, "A resolve is already in progress", err)
		default:
			a.sendAndLogError(ctx, "Resolve failed", err)
		}
	}()
}

// send delivers msg to the UI unless ctx is done first.
func (a *App) send(ctx context.Context, msg tea.Msg) bool {
	select {
	case a.uiMessages <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(ctx context.Context, baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.send(ctx, appevents.AppErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
