package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brutella/dnssd"
	"github.com/miekg/dns"
)

// DNSSDWrapper browses and resolves with the pure Go mDNS stack of
// brutella/dnssd. It needs no daemon, but cannot change the host name.
type DNSSDWrapper struct {
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	browser *dnssdBrowse

	// dispatch serializes listener calls.
	dispatch sync.Mutex
}

type dnssdBrowse struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
}

var _ Wrapper = (*DNSSDWrapper)(nil)

func NewDNSSDWrapper(cfg *Config, metrics *Metrics) *DNSSDWrapper {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DNSSDWrapper{
		cfg:     *cfg,
		metrics: metrics,
		logger:  slog.Default().With("component", "dnssd"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *DNSSDWrapper) StartBrowser(serviceType string, handler SafeHandler) error {
	if err := validateServiceType(serviceType); err != nil {
		return err
	}
	if handler == nil {
		handler = DiscoveryListeners{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWrapperClosed
	}
	if w.browser != nil {
		if w.cfg.BrowsePolicy == BrowsePolicyReject {
			return ErrBrowserActive
		}
		w.stopLocked()
	}

	ctx, cancel := context.WithCancel(w.ctx)
	br := &dnssdBrowse{cancel: cancel}
	w.browser = br
	w.metrics.browsers(BackendDNSSD, 1)

	service := dns.Fqdn(fmt.Sprintf("%s.%s", strings.TrimSuffix(serviceType, "."), w.cfg.domainOr(DefaultDomain)))

	addFn := func(e dnssd.BrowseEntry) {
		w.emit(br, func() { w.onEntryAdded(handler, e) })
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		w.emit(br, func() {
			w.metrics.browseEvent(BackendDNSSD, "remove")
			w.logger.Debug("Service removed", "name", e.Name, "type", e.Type)
		})
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := dnssd.LookupType(ctx, service, addFn, rmvFn); err != nil && !errors.Is(err, context.Canceled) {
			w.metrics.browseEvent(BackendDNSSD, "failure")
			w.logger.Warn("mDNS lookup failed", "type", serviceType, "error", err)
		}
	}()

	w.logger.Info("Browsing", "service", service)
	return nil
}

// emit runs f with listener calls serialized, unless br was stopped.
func (w *DNSSDWrapper) emit(br *dnssdBrowse, f func()) {
	if br != nil && br.stopped.Load() {
		return
	}
	w.dispatch.Lock()
	defer w.dispatch.Unlock()
	if br != nil && br.stopped.Load() {
		return
	}
	f()
}

func (w *DNSSDWrapper) onEntryAdded(handler SafeHandler, e dnssd.BrowseEntry) {
	w.metrics.browseEvent(BackendDNSSD, "new")

	browsed := BrowsedServiceDescription{
		Domain:    e.Domain,
		Name:      e.Name,
		TypeName:  e.Type,
		Interface: interfaceIndex(e.IfaceName),
		Protocol:  ProtocolAny,
	}
	if len(e.IPs) > 0 {
		browsed.Protocol = protocolOf(e.IPs[0])
	}
	if !w.cfg.Protocol.matches(browsed.Protocol) {
		return
	}
	handler.OnServiceBrowsed(browsed)

	if !w.cfg.AutoResolve {
		return
	}
	for _, ip := range e.IPs {
		p := protocolOf(ip)
		if !w.cfg.AddressProtocol.matches(p) {
			continue
		}
		w.metrics.resolution(BackendDNSSD, "found")
		handler.OnServiceResolved(ServiceDescription{
			Address:   ip.String(),
			Domain:    e.Domain,
			HostName:  strings.TrimSuffix(e.Host, "."),
			Name:      e.Name,
			Port:      uint16(e.Port),
			TypeName:  e.Type,
			Interface: browsed.Interface,
			Protocol:  p,
		})
	}
}

// Resolve looks the instance up once, bounded by ResolveTimeout, and
// reports the first address matching both AddressProtocol and the
// protocol the instance was browsed on. The query itself cannot be
// pinned to service.Interface; it is only carried into the result.
func (w *DNSSDWrapper) Resolve(service ServiceDescription, listeners ResolveListeners) error {
	if service.Name == "" {
		return fmt.Errorf("%w: empty instance name", ErrSubscription)
	}
	if err := validateServiceType(service.TypeName); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWrapperClosed
	}

	domain := service.Domain
	if domain == "" {
		domain = w.cfg.domainOr(DefaultDomain)
	}
	instance := dns.Fqdn(fmt.Sprintf("%s.%s.%s", escapeInstance(service.Name),
		strings.TrimSuffix(service.TypeName, "."), strings.TrimSuffix(domain, ".")))

	w.metrics.resolvers(BackendDNSSD, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.metrics.resolvers(BackendDNSSD, -1)

		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.ResolveTimeout)
		defer cancel()

		svc, err := dnssd.LookupInstance(ctx, instance)
		if err != nil {
			w.metrics.resolution(BackendDNSSD, "failure")
			w.logger.Info("Failed to resolve", "name", service.Name, "error", err)
			return
		}

		if ip, p, ok := pickAddress(svc.IPs, w.cfg.AddressProtocol, service.Protocol); ok {
			w.emit(nil, func() {
				w.metrics.resolution(BackendDNSSD, "found")
				listeners.OnServiceResolved(ServiceDescription{
					Address:   ip.String(),
					Domain:    svc.Domain,
					HostName:  strings.TrimSuffix(svc.Host, "."),
					Name:      svc.Name,
					Port:      uint16(svc.Port),
					TypeName:  svc.Type,
					Interface: service.Interface,
					Protocol:  p,
				})
			})
			return
		}
		w.metrics.resolution(BackendDNSSD, "failure")
		w.logger.Info("Resolved without a matching address", "name", service.Name,
			"protocol", w.cfg.AddressProtocol, "browsed", service.Protocol)
	}()
	return nil
}

func (w *DNSSDWrapper) StopBrowser() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.browser != nil {
		w.stopLocked()
	}
	return nil
}

func (w *DNSSDWrapper) stopLocked() {
	w.browser.stopped.Store(true)
	w.browser.cancel()
	w.browser = nil
	w.metrics.browsers(BackendDNSSD, -1)
}

// HostName reports the first label of the operating system host name.
func (w *DNSSDWrapper) HostName() (string, bool) {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "", false
	}
	label, _, _ := strings.Cut(name, ".")
	return label, true
}

func (w *DNSSDWrapper) SetHostName(name string) error {
	if !w.IsValidHostName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidHostName, name)
	}
	return fmt.Errorf("%w: set host name", ErrNotSupported)
}

func (w *DNSSDWrapper) IsValidHostName(name string) bool {
	return isValidHostName(name)
}

func (w *DNSSDWrapper) AlternativeHostName(name string) string {
	return alternativeHostName(name)
}

// Close cancels every lookup and waits for them to return.
func (w *DNSSDWrapper) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.browser != nil {
		w.stopLocked()
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return nil
}

func (p Protocol) matches(other Protocol) bool {
	return p == ProtocolAny || p == other
}

// pickAddress returns the first of ips whose family every filter accepts.
func pickAddress(ips []net.IP, filters ...Protocol) (net.IP, Protocol, bool) {
next:
	for _, ip := range ips {
		p := protocolOf(ip)
		for _, f := range filters {
			if !f.matches(p) {
				continue next
			}
		}
		return ip, p, true
	}
	return nil, ProtocolAny, false
}

func protocolOf(ip net.IP) Protocol {
	if ip.To4() != nil {
		return ProtocolIPv4
	}
	return ProtocolIPv6
}

func interfaceIndex(name string) int {
	if name == "" {
		return InterfaceAny
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return InterfaceAny
	}
	return iface.Index
}

// escapeInstance escapes an instance name for use as the first label
// of a DNS name.
func escapeInstance(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `.`, `\.`)
	return r.Replace(name)
}
