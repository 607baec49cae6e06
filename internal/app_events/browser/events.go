package browser

import (
	appevents "github.com/rescp17/lanDiscovery/internal/app_events"
	"github.com/rescp17/lanDiscovery/pkg/discovery"
)

// Service is one discovered instance as the UI shows it. Addresses is
// empty until the instance has been resolved.
type Service struct {
	discovery.BrowsedServiceDescription
	HostName  string
	Addresses []string
	Port      uint16
}

// Resolved reports whether at least one address is known.
func (s Service) Resolved() bool {
	return len(s.Addresses) > 0
}

// --- App Events (from TUI to App) ---

// ResolveMsg asks the app to resolve a service again.
type ResolveMsg struct {
	appevents.Event
	Service discovery.BrowsedServiceDescription
}

// RefreshMsg restarts the browse and forgets every known service.
type RefreshMsg struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*ResolveMsg)(nil)
	_ appevents.AppEvent = (*RefreshMsg)(nil)
)

// --- UI Messages (from App to TUI) ---

// FoundServicesMsg carries the full set of known services, sorted by name.
type FoundServicesMsg struct {
	appevents.UIMessage
	Services []Service
}

// StatusUpdateMsg is a one-line status for the footer.
type StatusUpdateMsg struct {
	appevents.UIMessage
	Message string
}

var (
	_ appevents.AppUIMessage = FoundServicesMsg{}
	_ appevents.AppUIMessage = StatusUpdateMsg{}
)
