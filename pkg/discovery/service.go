package discovery

import (
	"fmt"
	"strings"
)

const (
	DefaultServiceType = "_file-sharing._tcp"
	DefaultDomain      = "local"

	// InterfaceAny selects every network interface.
	InterfaceAny = -1
)

// Protocol is the IP family a service was found on or is resolved to.
type Protocol int

const (
	ProtocolAny Protocol = iota
	ProtocolIPv4
	ProtocolIPv6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolIPv4:
		return "ipv4"
	case ProtocolIPv6:
		return "ipv6"
	default:
		return "any"
	}
}

// ParseProtocol accepts "any", "ipv4" and "ipv6" (also "inet", "inet6", "4", "6").
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "unspec":
		return ProtocolAny, nil
	case "ipv4", "inet", "4":
		return ProtocolIPv4, nil
	case "ipv6", "inet6", "6":
		return ProtocolIPv6, nil
	default:
		return ProtocolAny, fmt.Errorf("unknown protocol %q", s)
	}
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	v, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Set and Type make Protocol usable as a command line flag.
func (p *Protocol) Set(s string) error { return p.UnmarshalText([]byte(s)) }

func (p *Protocol) Type() string { return "protocol" }

// BrowsedServiceDescription is a service instance found while browsing.
// Interface and Protocol are where it was seen; resolving it again
// should use the same pair.
type BrowsedServiceDescription struct {
	Domain    string
	Name      string
	TypeName  string
	Interface int
	Protocol  Protocol
}

// Key identifies the instance independently of where it was seen.
func (d BrowsedServiceDescription) Key() string {
	return fmt.Sprintf("%s:%s:%s", d.Name, d.TypeName, d.Domain)
}

// ServiceDescription is a resolved service instance.
type ServiceDescription struct {
	Address   string
	Domain    string
	HostName  string
	Name      string
	Port      uint16
	TypeName  string
	Interface int
	Protocol  Protocol
}

// Key identifies the instance independently of where it was seen.
func (d ServiceDescription) Key() string {
	return fmt.Sprintf("%s:%s:%s", d.Name, d.TypeName, d.Domain)
}

// Browsed returns the browse-level part of d.
func (d ServiceDescription) Browsed() BrowsedServiceDescription {
	return BrowsedServiceDescription{
		Domain:    d.Domain,
		Name:      d.Name,
		TypeName:  d.TypeName,
		Interface: d.Interface,
		Protocol:  d.Protocol,
	}
}

// SafeHandler receives discovery results. Both methods are called from
// the backend's event goroutine, one call at a time, and must not block.
// They must not call Close on the Manager that invoked them.
type SafeHandler interface {
	OnServiceBrowsed(service BrowsedServiceDescription)
	OnServiceResolved(service ServiceDescription)
}

// DiscoveryListeners adapts a pair of functions to SafeHandler. Nil
// functions are skipped.
type DiscoveryListeners struct {
	Browsed  func(BrowsedServiceDescription)
	Resolved func(ServiceDescription)
}

func (l DiscoveryListeners) OnServiceBrowsed(service BrowsedServiceDescription) {
	if l.Browsed != nil {
		l.Browsed(service)
	}
}

func (l DiscoveryListeners) OnServiceResolved(service ServiceDescription) {
	if l.Resolved != nil {
		l.Resolved(service)
	}
}

// ResolveListeners receives the outcome of an explicit resolve.
type ResolveListeners struct {
	Resolved func(ServiceDescription)
}

func (l ResolveListeners) OnServiceBrowsed(BrowsedServiceDescription) {}

func (l ResolveListeners) OnServiceResolved(service ServiceDescription) {
	if l.Resolved != nil {
		l.Resolved(service)
	}
}
