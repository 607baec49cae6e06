package discovery

import (
	"log/slog"
)

// Manager is the entry point for service discovery. It forwards every
// operation to the backend chosen at construction.
type Manager struct {
	wrapper Wrapper
}

// NewManager builds the backend selected by cfg.
func NewManager(cfg *Config, metrics *Metrics) (*Manager, error) {
	w, err := NewWrapper(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Manager{wrapper: w}, nil
}

// NewManagerWithWrapper wraps an existing backend.
func NewManagerWithWrapper(w Wrapper) *Manager {
	return &Manager{wrapper: w}
}

// DiscoverServices starts browsing for serviceType. Results are
// delivered to listener on the backend's event goroutine.
func (m *Manager) DiscoverServices(serviceType string, listener SafeHandler) error {
	slog.Debug("Discovering services", "type", serviceType)
	return m.wrapper.StartBrowser(serviceType, listener)
}

// ResolveService resolves a service reported by a browse.
func (m *Manager) ResolveService(service ServiceDescription, listeners ResolveListeners) error {
	return m.wrapper.Resolve(service, listeners)
}

func (m *Manager) StopServiceDiscovery() error {
	return m.wrapper.StopBrowser()
}

func (m *Manager) GetHostName() (string, bool) {
	return m.wrapper.HostName()
}

func (m *Manager) SetHostName(name string) error {
	return m.wrapper.SetHostName(name)
}

func (m *Manager) IsValidHostName(name string) bool {
	return m.wrapper.IsValidHostName(name)
}

func (m *Manager) GetAlternativeHostName(name string) string {
	return m.wrapper.AlternativeHostName(name)
}

// Close tears the backend down. It must not be called from a listener.
func (m *Manager) Close() error {
	return m.wrapper.Close()
}
