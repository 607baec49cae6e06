// Package avahi binds the client API of the Avahi mDNS/DNS-SD daemon.
//
// The surface mirrors the C library one call at a time: a simple poll
// event loop, a client built on that loop, and service browsers and
// resolvers built on the client. Every handle has an explicit Free.
// A client must be freed before its poll, and freeing a client
// invalidates every browser and resolver created from it.
//
// The cgo implementation is only built on Linux with cgo enabled; see
// New. Tests drive the same interfaces through package avahitest.
package avahi

// Native is the entry point of the client library.
type Native interface {
	// NewSimplePoll creates an event loop.
	NewSimplePoll() (SimplePoll, error)

	// NewClient connects to the daemon through the loop's poll API.
	// cb may be called before NewClient returns; it receives the
	// client being constructed, so it must not rely on the return value
	// having been stored anywhere yet.
	NewClient(p Poll, flags ClientFlags, cb ClientCallback) (Client, error)

	// AddressSnprint writes a into buf as a NUL-terminated string.
	// buf should hold at least AddressStrMax bytes.
	AddressSnprint(buf []byte, a *Address)

	// Strerror returns the message for an error code.
	Strerror(code int) string
}

// Poll is the abstract poll API of a SimplePoll. It is only good for
// passing to NewClient.
type Poll interface {
	// Owner returns the loop this poll API belongs to.
	Owner() SimplePoll
}

// SimplePoll is an event loop. All callbacks of clients built on it run
// on the goroutine that calls Loop.
type SimplePoll interface {
	// Get returns the loop's poll API. It returns the same value on
	// every call.
	Get() Poll

	// Loop iterates until Quit is called or an iteration fails. It
	// returns non-zero when the loop terminated.
	Loop() int

	// Quit asks Loop to return. Call it through Do when Loop is running
	// on another goroutine.
	Quit()

	// Do runs f while holding the loop lock and wakes the loop
	// afterwards. Callbacks already run under the lock, so Do may be
	// called from a callback.
	Do(f func())

	// Free releases the loop. Every client built on it must be freed
	// first, and Loop must have returned.
	Free()
}

// ClientCallback is called whenever the client's state changes.
type ClientCallback func(c Client, state ClientState)

// BrowseCallback is called once per browse event.
type BrowseCallback func(b ServiceBrowser, ev *BrowseEvent)

// ResolveCallback is called once per resolution outcome.
type ResolveCallback func(r ServiceResolver, ev *ResolveEvent)

// Client is a connection to the daemon.
type Client interface {
	// NewServiceBrowser browses for serviceType in domain. An empty
	// domain selects the daemon's default.
	NewServiceBrowser(iface IfIndex, proto Protocol, serviceType, domain string,
		flags LookupFlags, cb BrowseCallback) (ServiceBrowser, error)

	// NewServiceResolver resolves one service instance. iface and proto
	// must be the values of the browse event that found the instance.
	// aproto selects the address family of the result.
	NewServiceResolver(iface IfIndex, proto Protocol, name, serviceType, domain string,
		aproto Protocol, flags LookupFlags, cb ResolveCallback) (ServiceResolver, error)

	// HostName returns the host name the daemon advertises.
	HostName() (string, error)

	// SetHostName asks the daemon to advertise a new host name.
	SetHostName(name string) error

	State() ClientState

	// Errno returns the code of the last failed call on this client.
	Errno() int

	// Free disconnects the client and invalidates every browser and
	// resolver created from it.
	Free()
}

// ServiceBrowser is an outstanding browse request.
type ServiceBrowser interface {
	Free() error
}

// ServiceResolver is an outstanding resolve request.
type ServiceResolver interface {
	Free() error
}

// BrowseEvent is the payload of a BrowseCallback.
type BrowseEvent struct {
	Interface IfIndex
	Protocol  Protocol
	Event     BrowserEvent
	Name      Text
	Type      Text
	Domain    Text
	Flags     LookupResultFlags
}

// ResolveEvent is the payload of a ResolveCallback. Address is nil on
// failure.
type ResolveEvent struct {
	Interface IfIndex
	Protocol  Protocol
	Event     ResolverEvent
	Name      Text
	Type      Text
	Domain    Text
	HostName  Text
	Address   *Address
	Port      uint16
	Flags     LookupResultFlags
}
