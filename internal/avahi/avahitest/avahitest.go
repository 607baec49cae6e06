// Package avahitest provides an in-memory avahi.Native for tests.
//
// It records every handle creation and release in order, reports
// lifetime violations (double frees, use after free, freeing a loop
// that still has clients), and lets tests deliver browse, resolve and
// client-state events on the loop goroutine the way the daemon would.
package avahitest

import (
	"bytes"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rescp17/lanDiscovery/internal/avahi"
)

// Lifecycle events recorded by Native.
const (
	PollNew      = "poll.new"
	PollFree     = "poll.free"
	LoopExit     = "loop.exit"
	ClientNew    = "client.new"
	ClientFree   = "client.free"
	BrowserNew   = "browser.new"
	BrowserFree  = "browser.free"
	ResolverNew  = "resolver.new"
	ResolverFree = "resolver.free"
)

// Native is an instrumented stand-in for the client library. Set the
// Fail* fields before use to make the matching constructor fail with
// that error code.
type Native struct {
	FailPoll     bool
	FailClient   int
	FailBrowser  int
	FailResolver int

	// InitialState is reported to the client callback from inside
	// NewClient, as the daemon does. Zero means avahi.ClientRunning.
	InitialState avahi.ClientState

	mu         sync.Mutex
	events     []string
	violations []string
	hostName   string
	polls      []*SimplePoll
	clients    []*Client
	browsers   []*ServiceBrowser
	resolvers  []*ServiceResolver
}

var _ avahi.Native = (*Native)(nil)

// New returns a Native whose daemon advertises hostName.
func New(hostName string) *Native {
	return &Native{hostName: hostName}
}

func (n *Native) record(event string) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *Native) violate(format string, args ...any) {
	n.mu.Lock()
	n.violations = append(n.violations, fmt.Sprintf(format, args...))
	n.mu.Unlock()
}

// Events returns the recorded lifecycle events in order.
func (n *Native) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// Violations returns every lifetime rule broken so far.
func (n *Native) Violations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.violations...)
}

// Count returns how many times event was recorded.
func (n *Native) Count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// Browsers returns every browser created so far, freed or not.
func (n *Native) Browsers() []*ServiceBrowser {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*ServiceBrowser(nil), n.browsers...)
}

// Resolvers returns every resolver created so far, freed or not.
func (n *Native) Resolvers() []*ServiceResolver {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*ServiceResolver(nil), n.resolvers...)
}

// Clients returns every client created so far.
func (n *Native) Clients() []*Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Client(nil), n.clients...)
}

// Polls returns every loop created so far.
func (n *Native) Polls() []*SimplePoll {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*SimplePoll(nil), n.polls...)
}

// LiveResolvers returns the resolvers not yet freed.
func (n *Native) LiveResolvers() []*ServiceResolver {
	n.mu.Lock()
	defer n.mu.Unlock()
	var live []*ServiceResolver
	for _, r := range n.resolvers {
		if !r.freed {
			live = append(live, r)
		}
	}
	return live
}

func (n *Native) NewSimplePoll() (avahi.SimplePoll, error) {
	if n.FailPoll {
		return nil, avahi.NewError("simple_poll_new", avahi.CodeNoMemory, "")
	}
	p := &SimplePoll{
		n:     n,
		queue: make(chan func()),
		quit:  make(chan struct{}),
	}
	p.api = &pollAPI{owner: p}
	n.mu.Lock()
	n.polls = append(n.polls, p)
	n.mu.Unlock()
	n.record(PollNew)
	return p, nil
}

func (n *Native) NewClient(p avahi.Poll, flags avahi.ClientFlags, cb avahi.ClientCallback) (avahi.Client, error) {
	api, ok := p.(*pollAPI)
	if !ok {
		return nil, avahi.NewError("client_new", avahi.CodeInvalidObject, "")
	}
	if api.owner.isFreed() {
		n.violate("client created on a freed poll")
		return nil, avahi.ErrHandleFreed
	}
	if n.FailClient != 0 {
		return nil, avahi.NewError("client_new", n.FailClient, "")
	}

	state := n.InitialState
	if state == 0 {
		state = avahi.ClientRunning
	}
	c := &Client{n: n, poll: api.owner, cb: cb, flags: flags, state: state}
	n.mu.Lock()
	n.clients = append(n.clients, c)
	api.owner.clients++
	n.mu.Unlock()
	n.record(ClientNew)

	// The daemon reports the first state before avahi_client_new returns.
	if cb != nil {
		cb(c, state)
	}
	return c, nil
}

func (n *Native) AddressSnprint(buf []byte, a *avahi.Address) {
	avahi.FormatAddress(buf, a)
}

func (n *Native) Strerror(code int) string {
	return avahi.ErrorString(code)
}

type pollAPI struct {
	owner *SimplePoll
}

func (a *pollAPI) Owner() avahi.SimplePoll { return a.owner }

// SimplePoll is an event loop fed by the test through the Emit methods
// of browsers, resolvers and clients.
type SimplePoll struct {
	n   *Native
	api *pollAPI

	lock     sync.Mutex
	owner    atomic.Uint64 // goroutine holding lock, 0 if none
	queue    chan func()
	quit     chan struct{}
	quitOnce sync.Once

	// guarded by n.mu
	freed   bool
	clients int
}

func (p *SimplePoll) isFreed() bool {
	p.n.mu.Lock()
	defer p.n.mu.Unlock()
	return p.freed
}

func (p *SimplePoll) Get() avahi.Poll { return p.api }

func (p *SimplePoll) Loop() int {
	for {
		select {
		case f := <-p.queue:
			p.locked(f)
		case <-p.quit:
			p.n.record(LoopExit)
			return 1
		}
	}
}

func (p *SimplePoll) Quit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// Do is reentrant on the goroutine that holds the loop lock, so
// callbacks may call it as they may with the real binding.
func (p *SimplePoll) Do(f func()) {
	if p.owner.Load() == goroutineID() {
		f()
		return
	}
	p.locked(f)
}

func (p *SimplePoll) locked(f func()) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.owner.Store(goroutineID())
	defer p.owner.Store(0)
	f()
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (p *SimplePoll) Free() {
	p.n.mu.Lock()
	if p.freed {
		p.n.mu.Unlock()
		p.n.violate("poll freed twice")
		return
	}
	p.freed = true
	live := p.clients
	p.n.mu.Unlock()
	if live > 0 {
		p.n.violate("poll freed with %d live client(s)", live)
	}
	p.n.record(PollFree)
}

// dispatch runs f on the loop goroutine with the loop lock held and
// waits for it. It returns false when the loop has stopped.
func (p *SimplePoll) dispatch(f func() bool) bool {
	done := make(chan bool, 1)
	select {
	case p.queue <- func() { done <- f() }:
		return <-done
	case <-p.quit:
		return false
	}
}

// Client is a fake daemon connection.
type Client struct {
	n     *Native
	poll  *SimplePoll
	cb    avahi.ClientCallback
	flags avahi.ClientFlags

	// guarded by n.mu
	freed    bool
	state    avahi.ClientState
	errno    int
	hostName string
	children []child
}

type child interface {
	invalidate()
}

// Flags returns the flags the client was created with.
func (c *Client) Flags() avahi.ClientFlags { return c.flags }

// Freed reports whether Free has been called.
func (c *Client) Freed() bool {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.freed
}

// SetState delivers a state change on the loop goroutine.
func (c *Client) SetState(state avahi.ClientState) bool {
	return c.poll.dispatch(func() bool {
		c.n.mu.Lock()
		if c.freed {
			c.n.mu.Unlock()
			return false
		}
		c.state = state
		c.n.mu.Unlock()
		if c.cb != nil {
			c.cb(c, state)
		}
		return true
	})
}

func (c *Client) checkLive(op string) error {
	c.n.mu.Lock()
	freed := c.freed
	c.n.mu.Unlock()
	if freed {
		c.n.violate("%s on a freed client", op)
		return avahi.ErrHandleFreed
	}
	return nil
}

func (c *Client) fail(op string, code int) error {
	c.n.mu.Lock()
	c.errno = code
	c.n.mu.Unlock()
	return avahi.NewError(op, code, "")
}

func (c *Client) NewServiceBrowser(iface avahi.IfIndex, proto avahi.Protocol, serviceType, domain string,
	flags avahi.LookupFlags, cb avahi.BrowseCallback) (avahi.ServiceBrowser, error) {
	if err := c.checkLive("service_browser_new"); err != nil {
		return nil, err
	}
	if c.n.FailBrowser != 0 {
		return nil, c.fail("service_browser_new", c.n.FailBrowser)
	}
	b := &ServiceBrowser{
		client:      c,
		cb:          cb,
		Interface:   iface,
		Protocol:    proto,
		ServiceType: serviceType,
		Domain:      domain,
		Flags:       flags,
	}
	c.n.mu.Lock()
	c.n.browsers = append(c.n.browsers, b)
	c.children = append(c.children, b)
	c.n.mu.Unlock()
	c.n.record(BrowserNew)
	return b, nil
}

func (c *Client) NewServiceResolver(iface avahi.IfIndex, proto avahi.Protocol, name, serviceType, domain string,
	aproto avahi.Protocol, flags avahi.LookupFlags, cb avahi.ResolveCallback) (avahi.ServiceResolver, error) {
	if err := c.checkLive("service_resolver_new"); err != nil {
		return nil, err
	}
	if c.n.FailResolver != 0 {
		return nil, c.fail("service_resolver_new", c.n.FailResolver)
	}
	r := &ServiceResolver{
		client:          c,
		cb:              cb,
		Interface:       iface,
		Protocol:        proto,
		Name:            name,
		ServiceType:     serviceType,
		Domain:          domain,
		AddressProtocol: aproto,
		Flags:           flags,
	}
	c.n.mu.Lock()
	c.n.resolvers = append(c.n.resolvers, r)
	c.children = append(c.children, r)
	c.n.mu.Unlock()
	c.n.record(ResolverNew)
	return r, nil
}

func (c *Client) HostName() (string, error) {
	if err := c.checkLive("client_get_host_name"); err != nil {
		return "", err
	}
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	if c.hostName != "" {
		return c.hostName, nil
	}
	if c.n.hostName == "" {
		c.errno = avahi.CodeBadState
		return "", avahi.NewError("client_get_host_name", avahi.CodeBadState, "")
	}
	return c.n.hostName, nil
}

func (c *Client) SetHostName(name string) error {
	if err := c.checkLive("client_set_host_name"); err != nil {
		return err
	}
	if !avahi.IsValidHostName(name) {
		return c.fail("client_set_host_name", avahi.CodeInvalidHostName)
	}
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	current := c.hostName
	if current == "" {
		current = c.n.hostName
	}
	if current == name {
		c.errno = avahi.CodeNoChange
		return avahi.NewError("client_set_host_name", avahi.CodeNoChange, "")
	}
	c.hostName = name
	return nil
}

func (c *Client) State() avahi.ClientState {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.state
}

func (c *Client) Errno() int {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.errno
}

func (c *Client) Free() {
	c.n.mu.Lock()
	if c.freed {
		c.n.mu.Unlock()
		c.n.violate("client freed twice")
		return
	}
	if c.poll.freed {
		c.n.mu.Unlock()
		c.n.violate("client freed after its poll")
		return
	}
	c.freed = true
	c.poll.clients--
	for _, ch := range c.children {
		ch.invalidate()
	}
	c.n.mu.Unlock()
	c.n.record(ClientFree)
}

// ServiceBrowser is a fake browse request. The exported fields are the
// arguments it was created with.
type ServiceBrowser struct {
	Interface   avahi.IfIndex
	Protocol    avahi.Protocol
	ServiceType string
	Domain      string
	Flags       avahi.LookupFlags

	client *Client
	cb     avahi.BrowseCallback
	freed  bool // guarded by n.mu
}

func (b *ServiceBrowser) invalidate() { b.freed = true }

// Freed reports whether the browser is gone.
func (b *ServiceBrowser) Freed() bool {
	b.client.n.mu.Lock()
	defer b.client.n.mu.Unlock()
	return b.freed
}

func (b *ServiceBrowser) Free() error {
	n := b.client.n
	n.mu.Lock()
	if b.freed {
		n.mu.Unlock()
		n.violate("browser %q freed twice", b.ServiceType)
		return avahi.ErrHandleFreed
	}
	b.freed = true
	n.mu.Unlock()
	n.record(BrowserFree)
	return nil
}

// Emit delivers ev to the browse callback on the loop goroutine and
// waits for the callback to return. It reports false, without calling
// back, if the browser has been freed.
func (b *ServiceBrowser) Emit(ev avahi.BrowseEvent) bool {
	return b.client.poll.dispatch(func() bool {
		if b.Freed() {
			return false
		}
		b.cb(b, &ev)
		return true
	})
}

// EmitNew delivers a BrowserNew event for a service instance.
func (b *ServiceBrowser) EmitNew(iface avahi.IfIndex, proto avahi.Protocol, name, serviceType, domain string) bool {
	return b.Emit(avahi.BrowseEvent{
		Interface: iface,
		Protocol:  proto,
		Event:     avahi.BrowserNew,
		Name:      avahi.TextOf(name),
		Type:      avahi.TextOf(serviceType),
		Domain:    avahi.TextOf(domain),
	})
}

// ServiceResolver is a fake resolve request. The exported fields are
// the arguments it was created with.
type ServiceResolver struct {
	Interface       avahi.IfIndex
	Protocol        avahi.Protocol
	Name            string
	ServiceType     string
	Domain          string
	AddressProtocol avahi.Protocol
	Flags           avahi.LookupFlags

	client *Client
	cb     avahi.ResolveCallback
	freed  bool // guarded by n.mu
}

func (r *ServiceResolver) invalidate() { r.freed = true }

// Freed reports whether the resolver is gone.
func (r *ServiceResolver) Freed() bool {
	r.client.n.mu.Lock()
	defer r.client.n.mu.Unlock()
	return r.freed
}

func (r *ServiceResolver) Free() error {
	n := r.client.n
	n.mu.Lock()
	if r.freed {
		n.mu.Unlock()
		n.violate("resolver %q freed twice", r.Name)
		return avahi.ErrHandleFreed
	}
	r.freed = true
	n.mu.Unlock()
	n.record(ResolverFree)
	return nil
}

// Emit delivers ev to the resolve callback on the loop goroutine and
// waits for the callback to return. It reports false, without calling
// back, if the resolver has been freed.
func (r *ServiceResolver) Emit(ev avahi.ResolveEvent) bool {
	return r.client.poll.dispatch(func() bool {
		if r.Freed() {
			return false
		}
		r.cb(r, &ev)
		return true
	})
}

// EmitFound delivers a successful resolution carrying the request's
// own name, type and domain.
func (r *ServiceResolver) EmitFound(hostName string, ip net.IP, port uint16) bool {
	return r.Emit(avahi.ResolveEvent{
		Interface: r.Interface,
		Protocol:  r.Protocol,
		Event:     avahi.ResolverFound,
		Name:      avahi.TextOf(r.Name),
		Type:      avahi.TextOf(r.ServiceType),
		Domain:    avahi.TextOf(r.Domain),
		HostName:  avahi.TextOf(hostName),
		Address:   avahi.AddressFromIP(ip),
		Port:      port,
	})
}

// EmitFailure delivers a failed resolution.
func (r *ServiceResolver) EmitFailure() bool {
	return r.Emit(avahi.ResolveEvent{
		Interface: r.Interface,
		Protocol:  r.Protocol,
		Event:     avahi.ResolverFailure,
		Name:      avahi.TextOf(r.Name),
		Type:      avahi.TextOf(r.ServiceType),
		Domain:    avahi.TextOf(r.Domain),
		HostName:  avahi.NullText(),
	})
}
