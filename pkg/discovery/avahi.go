package discovery

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/lanDiscovery/internal/avahi"
)

// AvahiWrapper discovers services through the Avahi daemon.
//
// It owns one event loop, run on its own goroutine, and one client.
// Every native callback runs on the loop goroutine. Calls from other
// goroutines reach the client library through SimplePoll.Do, so the
// browser, the resolver set and the client state below are only ever
// touched with the loop lock held.
type AvahiWrapper struct {
	native  avahi.Native
	poll    avahi.SimplePoll
	client  avahi.Client
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	loopDone chan struct{}

	// guarded by the loop lock
	browser    avahi.ServiceBrowser
	browserRef *clientReference
	resolvers  map[avahi.ServiceResolver]*resolveRequest
	state     avahi.ClientState
}

var _ Wrapper = (*AvahiWrapper)(nil)

// NewAvahiWrapper creates the event loop and the client, then starts the
// loop goroutine. On error nothing is left allocated.
func NewAvahiWrapper(native avahi.Native, cfg *Config, metrics *Metrics) (*AvahiWrapper, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w := &AvahiWrapper{
		native:    native,
		cfg:       *cfg,
		metrics:   metrics,
		logger:    slog.Default().With("component", "avahi"),
		loopDone:  make(chan struct{}),
		resolvers: make(map[avahi.ServiceResolver]*resolveRequest),
	}

	poll, err := native.NewSimplePoll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapperCreate, err)
	}

	var flags avahi.ClientFlags
	if cfg.WaitForDaemon {
		flags |= avahi.ClientNoFail
	}
	// onClientState may run before NewClient returns; it only uses the
	// client it is handed.
	client, err := native.NewClient(poll.Get(), flags, w.onClientState)
	if err != nil {
		poll.Free()
		return nil, fmt.Errorf("%w: %v", ErrWrapperCreate, err)
	}

	w.poll = poll
	w.client = client
	go w.run()
	return w, nil
}

// enter registers a caller operation. It fails once Close has started;
// Close frees nothing until every registered operation has returned.
func (w *AvahiWrapper) enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.inflight.Add(1)
	return true
}

func (w *AvahiWrapper) run() {
	defer close(w.loopDone)
	if r := w.poll.Loop(); r < 0 {
		w.logger.Error("Event loop terminated", "status", r)
	}
}

func (w *AvahiWrapper) onClientState(c avahi.Client, state avahi.ClientState) {
	w.state = state
	switch state {
	case avahi.ClientFailure:
		w.logger.Error("Client failure", "error", w.native.Strerror(c.Errno()))
	case avahi.ClientCollision:
		w.logger.Warn("Host name collision")
	default:
		w.logger.Debug("Client state changed", "state", state)
	}
}

// StartBrowser browses for serviceType. With the replace policy an
// active browser is freed first; with the reject policy the call fails
// with ErrBrowserActive instead.
func (w *AvahiWrapper) StartBrowser(serviceType string, handler SafeHandler) error {
	if err := validateServiceType(serviceType); err != nil {
		return err
	}
	if handler == nil {
		handler = DiscoveryListeners{}
	}

	if !w.enter() {
		return ErrWrapperClosed
	}
	defer w.inflight.Done()

	// The context must exist before the browser can fire.
	ref := &clientReference{
		client:      w.client,
		handler:     handler,
		autoResolve: w.cfg.AutoResolve,
	}

	var err error
	w.poll.Do(func() {
		if w.browser != nil {
			if w.cfg.BrowsePolicy == BrowsePolicyReject {
				err = ErrBrowserActive
				return
			}
			w.freeBrowserLocked()
		}

		b, berr := w.client.NewServiceBrowser(ifIndex(w.cfg.Interface), toAvahiProtocol(w.cfg.Protocol),
			serviceType, w.cfg.Domain, 0, func(_ avahi.ServiceBrowser, ev *avahi.BrowseEvent) {
				w.onBrowse(ref, ev)
			})
		if berr != nil {
			err = fmt.Errorf("%w: browse %s: %v", ErrSubscription, serviceType, berr)
			return
		}
		w.browser = b
		w.browserRef = ref
		w.metrics.browsers(BackendAvahi, 1)
	})
	if err != nil {
		w.logger.Warn("Failed to start browser", "type", serviceType, "error", err)
		return err
	}

	w.logger.Info("Browsing", "type", serviceType, "domain", w.cfg.domainOr(DefaultDomain))
	return nil
}

// Resolve starts a resolver for service on the interface and protocol
// it was browsed on.
func (w *AvahiWrapper) Resolve(service ServiceDescription, listeners ResolveListeners) error {
	if service.Name == "" {
		return fmt.Errorf("%w: empty instance name", ErrSubscription)
	}
	if err := validateServiceType(service.TypeName); err != nil {
		return err
	}

	if !w.enter() {
		return ErrWrapperClosed
	}
	defer w.inflight.Done()

	req := &resolveRequest{client: w.client, handler: listeners}
	var err error
	w.poll.Do(func() {
		err = w.startResolverLocked(req, ifIndex(service.Interface), toAvahiProtocol(service.Protocol),
			service.Name, service.TypeName, service.Domain)
	})
	return err
}

// StopBrowser frees the active browser, if any.
func (w *AvahiWrapper) StopBrowser() error {
	if !w.enter() {
		return nil
	}
	defer w.inflight.Done()

	w.poll.Do(func() {
		if w.browser != nil {
			w.freeBrowserLocked()
		}
	})
	return nil
}

func (w *AvahiWrapper) freeBrowserLocked() {
	if err := w.browser.Free(); err != nil {
		w.logger.Warn("Failed to free browser", "error", err)
	}
	w.browser = nil
	if w.browserRef != nil {
		w.browserRef.stopped = true
		w.browserRef = nil
	}
	w.metrics.browsers(BackendAvahi, -1)
}

func (w *AvahiWrapper) HostName() (string, bool) {
	if !w.enter() {
		return "", false
	}
	defer w.inflight.Done()

	var (
		name string
		err  error
	)
	w.poll.Do(func() {
		name, err = w.client.HostName()
	})
	if err != nil {
		w.logger.Debug("Host name unavailable", "error", err)
		return "", false
	}
	return name, true
}

func (w *AvahiWrapper) SetHostName(name string) error {
	if !w.IsValidHostName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidHostName, name)
	}

	if !w.enter() {
		return ErrWrapperClosed
	}
	defer w.inflight.Done()

	var err error
	w.poll.Do(func() {
		err = w.client.SetHostName(name)
	})
	if err != nil {
		return fmt.Errorf("failed to set host name: %w", err)
	}
	return nil
}

func (w *AvahiWrapper) IsValidHostName(name string) bool {
	return avahi.IsValidHostName(name)
}

func (w *AvahiWrapper) AlternativeHostName(name string) string {
	return avahi.AlternativeHostName(name)
}

// Close stops the loop, waits for its goroutine and for operations
// already in progress, then frees the resolvers, the browser, the
// client and the loop, in that order.
func (w *AvahiWrapper) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.poll.Do(w.poll.Quit)
	<-w.loopDone
	w.inflight.Wait()

	// Nothing runs on the loop any more.
	for r, req := range w.resolvers {
		req.done = true
		if err := r.Free(); err != nil {
			w.logger.Warn("Failed to free resolver", "error", err)
		}
		delete(w.resolvers, r)
		w.metrics.resolvers(BackendAvahi, -1)
	}
	if w.browser != nil {
		w.freeBrowserLocked()
	}
	w.client.Free()
	w.poll.Free()

	w.logger.Debug("Closed")
	return nil
}

func ifIndex(i int) avahi.IfIndex {
	if i <= 0 {
		return avahi.IfUnspec
	}
	return avahi.IfIndex(i)
}

func toAvahiProtocol(p Protocol) avahi.Protocol {
	switch p {
	case ProtocolIPv4:
		return avahi.ProtoInet
	case ProtocolIPv6:
		return avahi.ProtoInet6
	default:
		return avahi.ProtoUnspec
	}
}

func fromAvahiProtocol(p avahi.Protocol) Protocol {
	switch p {
	case avahi.ProtoInet:
		return ProtocolIPv4
	case avahi.ProtoInet6:
		return ProtocolIPv6
	default:
		return ProtocolAny
	}
}
