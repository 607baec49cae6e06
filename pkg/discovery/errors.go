package discovery

import "errors"

var (
	// ErrWrapperCreate means the backend could not start; the wrapper is unusable.
	ErrWrapperCreate = errors.New("failed to create discovery backend")
	// ErrWrapperClosed is returned by every operation after Close.
	ErrWrapperClosed = errors.New("discovery backend is closed")
	// ErrBrowserActive is returned by StartBrowser under the reject policy.
	ErrBrowserActive = errors.New("a service browser is already active")
	// ErrSubscription means the daemon refused a browse or resolve request.
	ErrSubscription       = errors.New("discovery request rejected")
	ErrInvalidServiceType = errors.New("invalid service type")
	ErrInvalidHostName    = errors.New("invalid host name")
	ErrNotSupported       = errors.New("not supported by this backend")
)
