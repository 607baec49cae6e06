package discovery

import (
	"errors"
	"fmt"

	"github.com/rescp17/lanDiscovery/internal/avahi"
)

// clientReference is the context a browser is registered with. It is
// built before the browser and lives as long as any callback holding it.
// stopped is set, under the loop lock, once the browser has been freed.
type clientReference struct {
	client      avahi.Client
	handler     SafeHandler
	autoResolve bool
	stopped     bool
}

// resolveRequest tracks one resolver. done is set once the resolver has
// been freed, by its own outcome or by Close.
type resolveRequest struct {
	client  avahi.Client
	handler SafeHandler
	done    bool
}

var errNoAddress = errors.New("resolved without an address")

// onBrowse handles one browse event on the loop goroutine. New
// instances are reported and then resolved on the interface and
// protocol they were seen on. Other events are only logged.
func (w *AvahiWrapper) onBrowse(ref *clientReference, ev *avahi.BrowseEvent) {
	w.metrics.browseEvent(BackendAvahi, ev.Event.String())

	switch ev.Event {
	case avahi.BrowserNew:
		service, err := decodeBrowsed(ev)
		if err != nil {
			w.metrics.decodeFailure(BackendAvahi, "browse")
			w.logger.Warn("Dropping browse event", "error", err)
			return
		}

		ref.handler.OnServiceBrowsed(service)

		// The listener may have stopped the browse.
		if !ref.autoResolve || ref.stopped {
			return
		}
		req := &resolveRequest{client: ref.client, handler: ref.handler}
		if err := w.startResolverLocked(req, ev.Interface, ev.Protocol,
			service.Name, service.TypeName, service.Domain); err != nil {
			w.logger.Warn("Failed to resolve browsed service", "name", service.Name, "error", err)
		}
	case avahi.BrowserFailure:
		w.logger.Warn("Browser failed", "error", w.native.Strerror(ref.client.Errno()))
	default:
		w.logger.Debug("Browse event", "event", ev.Event)
	}
}

// startResolverLocked issues a resolve that skips TXT records. The loop
// lock must be held.
func (w *AvahiWrapper) startResolverLocked(req *resolveRequest, iface avahi.IfIndex, proto avahi.Protocol,
	name, serviceType, domain string) error {
	r, err := req.client.NewServiceResolver(iface, proto, name, serviceType, domain,
		toAvahiProtocol(w.cfg.AddressProtocol), avahi.LookupNoTXT,
		func(r avahi.ServiceResolver, ev *avahi.ResolveEvent) {
			w.onResolve(req, r, ev)
		})
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrSubscription, name, err)
	}
	if !req.done {
		w.resolvers[r] = req
		w.metrics.resolvers(BackendAvahi, 1)
	}
	return nil
}

// onResolve handles the outcome of one resolver on the loop goroutine.
// The resolver is freed before it returns, whatever the outcome.
func (w *AvahiWrapper) onResolve(req *resolveRequest, r avahi.ServiceResolver, ev *avahi.ResolveEvent) {
	defer w.releaseResolverLocked(req, r)

	switch ev.Event {
	case avahi.ResolverFailure:
		w.metrics.resolution(BackendAvahi, "failure")
		name, _ := ev.Name.Decode()
		w.logger.Info("Failed to resolve", "name", name, "error", w.native.Strerror(req.client.Errno()))
	case avahi.ResolverFound:
		if ev.Address == nil {
			w.metrics.decodeFailure(BackendAvahi, "resolve")
			w.logger.Warn("Dropping resolve event", "error", errNoAddress)
			return
		}
		buf := make([]byte, avahi.AddressStrMax)
		w.native.AddressSnprint(buf, ev.Address)

		service, err := decodeResolved(avahi.CText(buf), ev)
		if err != nil {
			w.metrics.decodeFailure(BackendAvahi, "resolve")
			w.logger.Warn("Dropping resolve event", "error", err)
			return
		}
		w.metrics.resolution(BackendAvahi, "found")
		req.handler.OnServiceResolved(service)
	default:
		w.logger.Debug("Resolve event", "event", ev.Event)
	}
}

func (w *AvahiWrapper) releaseResolverLocked(req *resolveRequest, r avahi.ServiceResolver) {
	if req.done {
		return
	}
	req.done = true
	if err := r.Free(); err != nil {
		w.logger.Warn("Failed to free resolver", "error", err)
	}
	if _, ok := w.resolvers[r]; ok {
		delete(w.resolvers, r)
		w.metrics.resolvers(BackendAvahi, -1)
	}
}

func decodeText(field string, t avahi.Text) (string, error) {
	s, err := t.Decode()
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return s, nil
}

func decodeBrowsed(ev *avahi.BrowseEvent) (BrowsedServiceDescription, error) {
	name, err := decodeText("name", ev.Name)
	if err != nil {
		return BrowsedServiceDescription{}, err
	}
	serviceType, err := decodeText("type", ev.Type)
	if err != nil {
		return BrowsedServiceDescription{}, err
	}
	domain, err := decodeText("domain", ev.Domain)
	if err != nil {
		return BrowsedServiceDescription{}, err
	}
	return BrowsedServiceDescription{
		Domain:    domain,
		Name:      name,
		TypeName:  serviceType,
		Interface: int(ev.Interface),
		Protocol:  fromAvahiProtocol(ev.Protocol),
	}, nil
}

func decodeResolved(address avahi.Text, ev *avahi.ResolveEvent) (ServiceDescription, error) {
	fields := []struct {
		name string
		text avahi.Text
		out  *string
	}{
		{name: "address", text: address},
		{name: "domain", text: ev.Domain},
		{name: "host name", text: ev.HostName},
		{name: "name", text: ev.Name},
		{name: "type", text: ev.Type},
	}
	var s ServiceDescription
	fields[0].out = &s.Address
	fields[1].out = &s.Domain
	fields[2].out = &s.HostName
	fields[3].out = &s.Name
	fields[4].out = &s.TypeName

	for _, f := range fields {
		v, err := decodeText(f.name, f.text)
		if err != nil {
			return ServiceDescription{}, err
		}
		*f.out = v
	}
	s.Port = ev.Port
	s.Interface = int(ev.Interface)
	s.Protocol = fromAvahiProtocol(ev.Protocol)
	return s, nil
}
