//go:build !linux || !cgo

package discovery

import (
	"fmt"
	"log/slog"
)

func newPlatformWrapper(*Config, *Metrics) (Wrapper, error) {
	slog.Info("Avahi is not available in this build, discovery is disabled")
	return NewFakeWrapper(), nil
}

func newAvahiBackend(*Config, *Metrics) (Wrapper, error) {
	return nil, fmt.Errorf("%w: the avahi backend needs linux and cgo", ErrNotSupported)
}
