//go:build linux && cgo

package discovery

import (
	"github.com/rescp17/lanDiscovery/internal/avahi"
)

func newPlatformWrapper(cfg *Config, metrics *Metrics) (Wrapper, error) {
	return newAvahiBackend(cfg, metrics)
}

func newAvahiBackend(cfg *Config, metrics *Metrics) (Wrapper, error) {
	w, err := NewAvahiWrapper(avahi.New(), cfg, metrics)
	if err != nil {
		return nil, err
	}
	return w, nil
}
