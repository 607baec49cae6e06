package discovery

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

// Backends selectable through Config.Backend.
const (
	// BackendAuto uses Avahi where it is built in and the no-op backend elsewhere.
	BackendAuto  = "auto"
	BackendAvahi = "avahi"
	BackendDNSSD = "dnssd"
	BackendFake  = "fake"
)

// What StartBrowser does while a browser is already active.
const (
	BrowsePolicyReplace = "replace"
	BrowsePolicyReject  = "reject"
)

// Config holds the discovery settings shared by all backends.
type Config struct {
	Backend string `yaml:"backend"`

	// Domain to browse; empty means the daemon's default (normally "local").
	Domain string `yaml:"domain"`

	// Interface index to browse on, InterfaceAny for all.
	Interface int `yaml:"interface"`

	// Protocol the mDNS queries are sent over.
	Protocol Protocol `yaml:"protocol"`

	// AddressProtocol is the address family resolves ask for.
	AddressProtocol Protocol `yaml:"address_protocol"`

	// AutoResolve resolves every browsed instance as soon as it is found.
	AutoResolve bool `yaml:"auto_resolve"`

	BrowsePolicy string `yaml:"browse_policy"`

	// WaitForDaemon keeps the Avahi client alive while the daemon is not
	// running instead of failing construction.
	WaitForDaemon bool `yaml:"wait_for_daemon"`

	// ResolveTimeout bounds explicit resolves on the dnssd backend.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:         BackendAuto,
		Domain:          "",
		Interface:       InterfaceAny,
		Protocol:        ProtocolAny,
		AddressProtocol: ProtocolAny,
		AutoResolve:     true,
		BrowsePolicy:    BrowsePolicyReplace,
		WaitForDaemon:   false,
		ResolveTimeout:  5 * time.Second,
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendAvahi, BackendDNSSD, BackendFake:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Domain != "" {
		if _, ok := dns.IsDomainName(c.Domain); !ok {
			return fmt.Errorf("invalid domain %q", c.Domain)
		}
	}

	if c.Interface < InterfaceAny {
		return errors.New("interface must be -1 (any) or a valid index")
	}

	switch c.BrowsePolicy {
	case BrowsePolicyReplace, BrowsePolicyReject:
	default:
		return fmt.Errorf("unknown browse_policy %q", c.BrowsePolicy)
	}

	if c.ResolveTimeout <= 0 {
		return errors.New("resolve_timeout must be positive")
	}

	return nil
}

// domainOr returns the configured domain, or def when none is set.
func (c *Config) domainOr(def string) string {
	if c.Domain == "" {
		return def
	}
	return c.Domain
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
