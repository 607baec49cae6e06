package avahi

import "fmt"

// AddressStrMax is the buffer size needed to format any address, NUL included.
const AddressStrMax = 40

// IfIndex is a network interface index. IfUnspec selects all interfaces.
type IfIndex int32

const IfUnspec IfIndex = -1

// Protocol is an address family.
type Protocol int32

const (
	ProtoInet   Protocol = 0
	ProtoInet6  Protocol = 1
	ProtoUnspec Protocol = -1
)

func (p Protocol) String() string {
	switch p {
	case ProtoInet:
		return "ipv4"
	case ProtoInet6:
		return "ipv6"
	case ProtoUnspec:
		return "unspec"
	default:
		return fmt.Sprintf("protocol(%d)", int32(p))
	}
}

// ClientState is the state of the connection to the daemon.
type ClientState int32

const (
	ClientRegistering ClientState = 1
	ClientRunning     ClientState = 2
	ClientCollision   ClientState = 3
	ClientFailure     ClientState = 100
	ClientConnecting  ClientState = 101
)

func (s ClientState) String() string {
	switch s {
	case ClientRegistering:
		return "registering"
	case ClientRunning:
		return "running"
	case ClientCollision:
		return "collision"
	case ClientFailure:
		return "failure"
	case ClientConnecting:
		return "connecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ClientFlags modify client construction.
type ClientFlags uint32

const (
	ClientIgnoreUserConfig ClientFlags = 1
	// ClientNoFail keeps the client alive while the daemon is absent
	// instead of failing construction.
	ClientNoFail ClientFlags = 2
)

// BrowserEvent is delivered to a BrowseCallback.
type BrowserEvent int32

const (
	BrowserNew            BrowserEvent = 0
	BrowserRemove         BrowserEvent = 1
	BrowserCacheExhausted BrowserEvent = 2
	BrowserAllForNow      BrowserEvent = 3
	BrowserFailure        BrowserEvent = 4
)

func (e BrowserEvent) String() string {
	switch e {
	case BrowserNew:
		return "new"
	case BrowserRemove:
		return "remove"
	case BrowserCacheExhausted:
		return "cache-exhausted"
	case BrowserAllForNow:
		return "all-for-now"
	case BrowserFailure:
		return "failure"
	default:
		return fmt.Sprintf("browser-event(%d)", int32(e))
	}
}

// ResolverEvent is delivered to a ResolveCallback.
type ResolverEvent int32

const (
	ResolverFound   ResolverEvent = 0
	ResolverFailure ResolverEvent = 1
)

func (e ResolverEvent) String() string {
	switch e {
	case ResolverFound:
		return "found"
	case ResolverFailure:
		return "failure"
	default:
		return fmt.Sprintf("resolver-event(%d)", int32(e))
	}
}

// LookupFlags modify browse and resolve requests.
type LookupFlags uint32

const (
	LookupUseWideArea  LookupFlags = 1
	LookupUseMulticast LookupFlags = 2
	// LookupNoTXT skips the TXT record; only addresses are resolved.
	LookupNoTXT     LookupFlags = 4
	LookupNoAddress LookupFlags = 8
)

// LookupResultFlags describe where a result came from.
type LookupResultFlags uint32

const (
	LookupResultCached    LookupResultFlags = 1
	LookupResultWideArea  LookupResultFlags = 2
	LookupResultMulticast LookupResultFlags = 4
	LookupResultLocal     LookupResultFlags = 8
	LookupResultOurOwn    LookupResultFlags = 16
	LookupResultStatic    LookupResultFlags = 32
)
