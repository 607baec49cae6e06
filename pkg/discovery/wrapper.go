package discovery

import (
	"fmt"
	"strings"
)

// Wrapper is a discovery backend. AvahiWrapper talks to the Avahi
// daemon, DNSSDWrapper speaks mDNS itself, and FakeWrapper does nothing.
type Wrapper interface {
	// StartBrowser browses for serviceType and reports results to
	// handler until StopBrowser or Close.
	StartBrowser(serviceType string, handler SafeHandler) error

	// Resolve looks up the address of an already browsed service.
	Resolve(service ServiceDescription, listeners ResolveListeners) error

	// StopBrowser cancels the active browse. It is a no-op when none is active.
	StopBrowser() error

	// HostName returns the advertised host name, if known.
	HostName() (string, bool)
	SetHostName(name string) error
	IsValidHostName(name string) bool
	AlternativeHostName(name string) string

	// Close releases everything the wrapper owns. It is idempotent.
	Close() error
}

// NewWrapper builds the backend named by cfg.Backend.
func NewWrapper(cfg *Config, metrics *Metrics) (Wrapper, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapperCreate, err)
	}

	switch cfg.Backend {
	case BackendAuto:
		return newPlatformWrapper(cfg, metrics)
	case BackendAvahi:
		return newAvahiBackend(cfg, metrics)
	case BackendDNSSD:
		return NewDNSSDWrapper(cfg, metrics), nil
	case BackendFake:
		return NewFakeWrapper(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrWrapperCreate, cfg.Backend)
	}
}

func validateServiceType(serviceType string) error {
	// "_name._tcp" or "_name._udp", optionally with subtype labels in front.
	labels := strings.Split(strings.TrimSuffix(serviceType, "."), ".")
	if len(labels) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
	}
	proto := labels[len(labels)-1]
	if proto != "_tcp" && proto != "_udp" {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
	}
	for _, l := range labels {
		if len(l) < 2 || l[0] != '_' {
			return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
		}
	}
	return nil
}
