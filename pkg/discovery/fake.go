package discovery

import (
	"github.com/rescp17/lanDiscovery/internal/avahi"
)

// FakeWrapper is the backend used where no discovery is available.
// Every operation succeeds and nothing is ever reported.
type FakeWrapper struct{}

var _ Wrapper = (*FakeWrapper)(nil)

func NewFakeWrapper() *FakeWrapper {
	return &FakeWrapper{}
}

func (f *FakeWrapper) StartBrowser(string, SafeHandler) error { return nil }

func (f *FakeWrapper) Resolve(ServiceDescription, ResolveListeners) error { return nil }

func (f *FakeWrapper) StopBrowser() error { return nil }

func (f *FakeWrapper) HostName() (string, bool) { return "", false }

func (f *FakeWrapper) SetHostName(string) error { return nil }

func (f *FakeWrapper) IsValidHostName(name string) bool { return isValidHostName(name) }

func (f *FakeWrapper) AlternativeHostName(name string) string { return alternativeHostName(name) }

func (f *FakeWrapper) Close() error { return nil }

// The host name rules are pure and shared by every backend.
var (
	isValidHostName     = avahi.IsValidHostName
	alternativeHostName = avahi.AlternativeHostName
)
