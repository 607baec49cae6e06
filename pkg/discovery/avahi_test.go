package discovery

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rescp17/lanDiscovery/internal/avahi"
	"github.com/rescp17/lanDiscovery/internal/avahi/avahitest"
)

type recorder struct {
	mu       sync.Mutex
	browsed  []BrowsedServiceDescription
	resolved []ServiceDescription
}

func (r *recorder) OnServiceBrowsed(s BrowsedServiceDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browsed = append(r.browsed, s)
}

func (r *recorder) OnServiceResolved(s ServiceDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, s)
}

func (r *recorder) Browsed() []BrowsedServiceDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BrowsedServiceDescription(nil), r.browsed...)
}

func (r *recorder) Resolved() []ServiceDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceDescription(nil), r.resolved...)
}

func newTestWrapper(t *testing.T, mutate ...func(*Config)) (*AvahiWrapper, *avahitest.Native) {
	t.Helper()

	native := avahitest.New("printer-host")
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}
	w, err := NewAvahiWrapper(native, cfg, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, w.Close())
		assert.Empty(t, native.Violations())
	})
	return w, native
}

func TestAvahiWrapper_BrowseAndAutoResolve(t *testing.T) {
	w, native := newTestWrapper(t)
	rec := &recorder{}

	require.NoError(t, w.StartBrowser("_ipp._tcp", rec))

	browsers := native.Browsers()
	require.Len(t, browsers, 1)
	b := browsers[0]
	assert.Equal(t, "_ipp._tcp", b.ServiceType)
	assert.Equal(t, avahi.IfUnspec, b.Interface)
	assert.Equal(t, avahi.ProtoUnspec, b.Protocol)
	assert.Equal(t, "", b.Domain)

	require.True(t, b.EmitNew(2, avahi.ProtoInet, "Office Printer", "_ipp._tcp", "local"))

	assert.Equal(t, []BrowsedServiceDescription{{
		Domain:    "local",
		Name:      "Office Printer",
		TypeName:  "_ipp._tcp",
		Interface: 2,
		Protocol:  ProtocolIPv4,
	}}, rec.Browsed())

	resolvers := native.Resolvers()
	require.Len(t, resolvers, 1)
	r := resolvers[0]
	assert.Equal(t, avahi.IfIndex(2), r.Interface)
	assert.Equal(t, avahi.ProtoInet, r.Protocol)
	assert.Equal(t, "Office Printer", r.Name)
	assert.Equal(t, "_ipp._tcp", r.ServiceType)
	assert.Equal(t, "local", r.Domain)
	assert.Equal(t, avahi.ProtoUnspec, r.AddressProtocol)
	assert.Equal(t, avahi.LookupNoTXT, r.Flags)

	require.True(t, r.EmitFound("printer.local", net.ParseIP("192.168.1.20"), 631))

	assert.Equal(t, []ServiceDescription{{
		Address:   "192.168.1.20",
		Domain:    "local",
		HostName:  "printer.local",
		Name:      "Office Printer",
		Port:      631,
		TypeName:  "_ipp._tcp",
		Interface: 2,
		Protocol:  ProtocolIPv4,
	}}, rec.Resolved())

	assert.True(t, r.Freed(), "resolver should be freed once it reported")
	assert.Empty(t, native.LiveResolvers())
	assert.False(t, r.EmitFound("printer.local", net.ParseIP("192.168.1.20"), 631))
	assert.Len(t, rec.Resolved(), 1)
}

func TestAvahiWrapper_BrowsedFieldsMatchEvent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		native := avahitest.New("host")
		cfg := DefaultConfig()
		cfg.AutoResolve = false
		w, err := NewAvahiWrapper(native, cfg, nil)
		require.NoError(t, err)
		defer w.Close()

		name := rapid.StringMatching(`[A-Za-z0-9 ()\-]{1,40}`).Draw(t, "name")
		serviceType := rapid.SampledFrom([]string{"_http._tcp", "_ipp._tcp", "_ssh._tcp", "_sip._udp"}).Draw(t, "type")
		domain := rapid.SampledFrom([]string{"local", "example.org"}).Draw(t, "domain")
		iface := rapid.IntRange(1, 64).Draw(t, "iface")
		proto := rapid.SampledFrom([]avahi.Protocol{avahi.ProtoInet, avahi.ProtoInet6}).Draw(t, "proto")

		rec := &recorder{}
		require.NoError(t, w.StartBrowser(serviceType, rec))
		b := native.Browsers()[0]
		require.True(t, b.EmitNew(avahi.IfIndex(iface), proto, name, serviceType, domain))

		got := rec.Browsed()
		require.Len(t, got, 1)
		assert.Equal(t, name, got[0].Name)
		assert.Equal(t, serviceType, got[0].TypeName)
		assert.Equal(t, domain, got[0].Domain)
		assert.Equal(t, iface, got[0].Interface)
		assert.Equal(t, fromAvahiProtocol(proto), got[0].Protocol)
		assert.Empty(t, native.Resolvers())
	})
}

func TestAvahiWrapper_ResolvedPortIsPreserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		native := avahitest.New("host")
		w, err := NewAvahiWrapper(native, DefaultConfig(), nil)
		require.NoError(t, err)
		defer w.Close()

		port := uint16(rapid.IntRange(0, 65535).Draw(t, "port"))
		rec := &recorder{}
		require.NoError(t, w.StartBrowser("_http._tcp", rec))
		require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))
		require.True(t, native.Resolvers()[0].EmitFound("web.local", net.ParseIP("10.0.0.1"), port))

		got := rec.Resolved()
		require.Len(t, got, 1)
		assert.Equal(t, port, got[0].Port)
	})
}

func TestAvahiWrapper_DropsUndecodableEvents(t *testing.T) {
	invalid := avahi.TextBytes([]byte{0xff, 0xfe})

	t.Run("browse", func(t *testing.T) {
		tests := []struct {
			name string
			ev   avahi.BrowseEvent
		}{
			{"invalid name", avahi.BrowseEvent{Name: invalid, Type: avahi.TextOf("_http._tcp"), Domain: avahi.TextOf("local")}},
			{"null type", avahi.BrowseEvent{Name: avahi.TextOf("web"), Type: avahi.NullText(), Domain: avahi.TextOf("local")}},
			{"null domain", avahi.BrowseEvent{Name: avahi.TextOf("web"), Type: avahi.TextOf("_http._tcp"), Domain: avahi.NullText()}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, native := newTestWrapper(t)
				rec := &recorder{}
				require.NoError(t, w.StartBrowser("_http._tcp", rec))

				tt.ev.Event = avahi.BrowserNew
				tt.ev.Interface = 1
				tt.ev.Protocol = avahi.ProtoInet
				require.True(t, native.Browsers()[0].Emit(tt.ev))

				assert.Empty(t, rec.Browsed())
				assert.Empty(t, native.Resolvers(), "no resolve for a dropped event")
			})
		}
	})

	t.Run("resolve", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*avahi.ResolveEvent)
		}{
			{"null host name", func(ev *avahi.ResolveEvent) { ev.HostName = avahi.NullText() }},
			{"invalid domain", func(ev *avahi.ResolveEvent) { ev.Domain = invalid }},
			{"missing address", func(ev *avahi.ResolveEvent) { ev.Address = nil }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, native := newTestWrapper(t)
				rec := &recorder{}
				require.NoError(t, w.StartBrowser("_http._tcp", rec))
				require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))

				r := native.Resolvers()[0]
				ev := avahi.ResolveEvent{
					Interface: 1,
					Protocol:  avahi.ProtoInet,
					Event:     avahi.ResolverFound,
					Name:      avahi.TextOf("web"),
					Type:      avahi.TextOf("_http._tcp"),
					Domain:    avahi.TextOf("local"),
					HostName:  avahi.TextOf("web.local"),
					Address:   avahi.AddressFromIP(net.ParseIP("10.0.0.1")),
					Port:      80,
				}
				tt.mutate(&ev)
				require.True(t, r.Emit(ev))

				assert.Empty(t, rec.Resolved())
				assert.True(t, r.Freed())
			})
		}
	})
}

func TestAvahiWrapper_ResolveFailureFreesResolver(t *testing.T) {
	w, native := newTestWrapper(t)
	rec := &recorder{}
	require.NoError(t, w.StartBrowser("_http._tcp", rec))
	require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet6, "web", "_http._tcp", "local"))

	r := native.Resolvers()[0]
	require.True(t, r.EmitFailure())

	assert.Len(t, rec.Browsed(), 1)
	assert.Empty(t, rec.Resolved())
	assert.True(t, r.Freed())
	assert.Equal(t, 1, native.Count(avahitest.ResolverFree))
}

func TestAvahiWrapper_IgnoresOtherBrowseEvents(t *testing.T) {
	w, native := newTestWrapper(t)
	rec := &recorder{}
	require.NoError(t, w.StartBrowser("_http._tcp", rec))
	b := native.Browsers()[0]

	for _, e := range []avahi.BrowserEvent{
		avahi.BrowserRemove, avahi.BrowserCacheExhausted, avahi.BrowserAllForNow, avahi.BrowserFailure,
	} {
		require.True(t, b.Emit(avahi.BrowseEvent{
			Interface: 1,
			Protocol:  avahi.ProtoInet,
			Event:     e,
			Name:      avahi.TextOf("web"),
			Type:      avahi.TextOf("_http._tcp"),
			Domain:    avahi.TextOf("local"),
		}), e.String())
	}

	assert.Empty(t, rec.Browsed())
	assert.Empty(t, rec.Resolved())
	assert.Empty(t, native.Resolvers())
}

func TestAvahiWrapper_AutoResolveDisabled(t *testing.T) {
	w, native := newTestWrapper(t, func(c *Config) { c.AutoResolve = false })
	rec := &recorder{}
	require.NoError(t, w.StartBrowser("_http._tcp", rec))
	require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))

	assert.Len(t, rec.Browsed(), 1)
	assert.Empty(t, native.Resolvers())
}

func TestAvahiWrapper_BrowserUsesConfig(t *testing.T) {
	w, native := newTestWrapper(t, func(c *Config) {
		c.Interface = 4
		c.Protocol = ProtocolIPv4
		c.AddressProtocol = ProtocolIPv6
		c.Domain = "example.org"
	})
	require.NoError(t, w.StartBrowser("_http._tcp", &recorder{}))

	b := native.Browsers()[0]
	assert.Equal(t, avahi.IfIndex(4), b.Interface)
	assert.Equal(t, avahi.ProtoInet, b.Protocol)
	assert.Equal(t, "example.org", b.Domain)

	require.True(t, b.EmitNew(4, avahi.ProtoInet, "web", "_http._tcp", "example.org"))
	assert.Equal(t, avahi.ProtoInet6, native.Resolvers()[0].AddressProtocol)
}

func TestAvahiWrapper_StopBrowser(t *testing.T) {
	w, native := newTestWrapper(t)

	// Idle stop does nothing.
	require.NoError(t, w.StopBrowser())
	assert.Equal(t, 0, native.Count(avahitest.BrowserFree))

	rec := &recorder{}
	require.NoError(t, w.StartBrowser("_http._tcp", rec))
	b := native.Browsers()[0]
	require.NoError(t, w.StopBrowser())

	assert.True(t, b.Freed())
	assert.False(t, b.EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))
	assert.Empty(t, rec.Browsed())

	require.NoError(t, w.StopBrowser())
	assert.Equal(t, 1, native.Count(avahitest.BrowserFree))
}

func TestAvahiWrapper_ListenerStopsBrowse(t *testing.T) {
	w, native := newTestWrapper(t)

	var browsed []string
	require.NoError(t, w.StartBrowser("_http._tcp", DiscoveryListeners{
		Browsed: func(s BrowsedServiceDescription) {
			browsed = append(browsed, s.Name)
			assert.NoError(t, w.StopBrowser())
		},
	}))
	b := native.Browsers()[0]

	require.True(t, b.EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))
	assert.Equal(t, []string{"web"}, browsed)
	assert.True(t, b.Freed())
	assert.Empty(t, native.Resolvers(), "a stopped browse must not resolve")

	// A new browse still resolves what it finds.
	require.NoError(t, w.StartBrowser("_http._tcp", nil))
	require.True(t, native.Browsers()[1].EmitNew(1, avahi.ProtoInet, "api", "_http._tcp", "local"))
	assert.Len(t, native.Resolvers(), 1)
}

func TestAvahiWrapper_ListenerStartsResolve(t *testing.T) {
	w, native := newTestWrapper(t, func(c *Config) { c.AutoResolve = false })

	var resolved []ServiceDescription
	require.NoError(t, w.StartBrowser("_http._tcp", DiscoveryListeners{
		Browsed: func(s BrowsedServiceDescription) {
			assert.NoError(t, w.Resolve(ServiceDescription{
				Name: s.Name, TypeName: s.TypeName, Domain: s.Domain, Interface: s.Interface, Protocol: s.Protocol,
			}, ResolveListeners{Resolved: func(s ServiceDescription) { resolved = append(resolved, s) }}))
		},
	}))

	require.True(t, native.Browsers()[0].EmitNew(3, avahi.ProtoInet6, "web", "_http._tcp", "local"))
	r := native.Resolvers()[0]
	assert.Equal(t, avahi.IfIndex(3), r.Interface)
	require.True(t, r.EmitFound("web.local", net.ParseIP("fe80::2"), 80))
	require.Len(t, resolved, 1)
	assert.Equal(t, "fe80::2", resolved[0].Address)
}

func TestAvahiWrapper_SecondBrowser(t *testing.T) {
	t.Run("replace", func(t *testing.T) {
		w, native := newTestWrapper(t)
		first, second := &recorder{}, &recorder{}
		require.NoError(t, w.StartBrowser("_http._tcp", first))
		require.NoError(t, w.StartBrowser("_ipp._tcp", second))

		browsers := native.Browsers()
		require.Len(t, browsers, 2)
		assert.True(t, browsers[0].Freed())
		assert.False(t, browsers[1].Freed())

		assert.False(t, browsers[0].EmitNew(1, avahi.ProtoInet, "web", "_http._tcp", "local"))
		require.True(t, browsers[1].EmitNew(1, avahi.ProtoInet, "printer", "_ipp._tcp", "local"))
		assert.Empty(t, first.Browsed())
		assert.Len(t, second.Browsed(), 1)
	})

	t.Run("reject", func(t *testing.T) {
		w, native := newTestWrapper(t, func(c *Config) { c.BrowsePolicy = BrowsePolicyReject })
		require.NoError(t, w.StartBrowser("_http._tcp", &recorder{}))

		err := w.StartBrowser("_ipp._tcp", &recorder{})
		assert.ErrorIs(t, err, ErrBrowserActive)
		require.Len(t, native.Browsers(), 1)
		assert.False(t, native.Browsers()[0].Freed())
	})
}

func TestAvahiWrapper_StartBrowserErrors(t *testing.T) {
	w, native := newTestWrapper(t)

	assert.ErrorIs(t, w.StartBrowser("http", &recorder{}), ErrInvalidServiceType)
	assert.Empty(t, native.Browsers())

	native.FailBrowser = avahi.CodeInvalidType
	assert.ErrorIs(t, w.StartBrowser("_http._tcp", &recorder{}), ErrSubscription)

	native.FailBrowser = 0
	require.NoError(t, w.StartBrowser("_http._tcp", &recorder{}))
	assert.Len(t, native.Browsers(), 1)
}

func TestAvahiWrapper_AutoResolveFailureKeepsBrowsing(t *testing.T) {
	w, native := newTestWrapper(t)
	native.FailResolver = avahi.CodeTooManyObjects

	rec := &recorder{}
	require.NoError(t, w.StartBrowser("_http._tcp", rec))
	b := native.Browsers()[0]
	require.True(t, b.EmitNew(1, avahi.ProtoInet, "a", "_http._tcp", "local"))
	require.True(t, b.EmitNew(1, avahi.ProtoInet, "b", "_http._tcp", "local"))

	assert.Len(t, rec.Browsed(), 2)
	assert.Empty(t, native.Resolvers())
}

func TestAvahiWrapper_ExplicitResolve(t *testing.T) {
	w, native := newTestWrapper(t)

	var got []ServiceDescription
	err := w.Resolve(ServiceDescription{
		Name:      "web",
		TypeName:  "_http._tcp",
		Domain:    "local",
		Interface: 3,
		Protocol:  ProtocolIPv6,
	}, ResolveListeners{Resolved: func(s ServiceDescription) { got = append(got, s) }})
	require.NoError(t, err)

	r := native.Resolvers()[0]
	assert.Equal(t, avahi.IfIndex(3), r.Interface)
	assert.Equal(t, avahi.ProtoInet6, r.Protocol)
	assert.Equal(t, avahi.LookupNoTXT, r.Flags)

	require.True(t, r.EmitFound("web.local", net.ParseIP("fe80::1"), 8080))
	require.Len(t, got, 1)
	assert.Equal(t, "fe80::1", got[0].Address)
	assert.Equal(t, ProtocolIPv6, got[0].Protocol)
	assert.True(t, r.Freed())

	t.Run("unset interface", func(t *testing.T) {
		require.NoError(t, w.Resolve(ServiceDescription{Name: "web", TypeName: "_http._tcp"}, ResolveListeners{}))
		r := native.Resolvers()[1]
		assert.Equal(t, avahi.IfUnspec, r.Interface)
		assert.Equal(t, avahi.ProtoUnspec, r.Protocol)
	})

	t.Run("validation", func(t *testing.T) {
		assert.ErrorIs(t, w.Resolve(ServiceDescription{TypeName: "_http._tcp"}, ResolveListeners{}), ErrSubscription)
		assert.ErrorIs(t, w.Resolve(ServiceDescription{Name: "web", TypeName: "_http"}, ResolveListeners{}), ErrInvalidServiceType)
	})
}

func TestAvahiWrapper_HostName(t *testing.T) {
	w, _ := newTestWrapper(t)

	name, ok := w.HostName()
	require.True(t, ok)
	assert.Equal(t, "printer-host", name)

	require.NoError(t, w.SetHostName("office"))
	name, ok = w.HostName()
	require.True(t, ok)
	assert.Equal(t, "office", name)

	err := w.SetHostName("office")
	assert.ErrorIs(t, err, avahi.NewError("", avahi.CodeNoChange, ""))

	assert.ErrorIs(t, w.SetHostName("bad.name"), ErrInvalidHostName)
	assert.ErrorIs(t, w.SetHostName(""), ErrInvalidHostName)

	assert.True(t, w.IsValidHostName("office"))
	assert.Equal(t, "office-2", w.AlternativeHostName("office"))
}

func TestAvahiWrapper_HostNameUnavailable(t *testing.T) {
	native := avahitest.New("")
	w, err := NewAvahiWrapper(native, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	_, ok := w.HostName()
	assert.False(t, ok)
}

func TestAvahiWrapper_ClientState(t *testing.T) {
	w, native := newTestWrapper(t)

	state := func() avahi.ClientState {
		var s avahi.ClientState
		w.poll.Do(func() { s = w.state })
		return s
	}
	assert.Equal(t, avahi.ClientRunning, state())

	require.True(t, native.Clients()[0].SetState(avahi.ClientCollision))
	assert.Equal(t, avahi.ClientCollision, state())
}

func TestNewAvahiWrapper_Failures(t *testing.T) {
	t.Run("poll", func(t *testing.T) {
		native := avahitest.New("host")
		native.FailPoll = true

		w, err := NewAvahiWrapper(native, nil, nil)
		assert.Nil(t, w)
		assert.ErrorIs(t, err, ErrWrapperCreate)
		assert.Empty(t, native.Events())
	})

	t.Run("client", func(t *testing.T) {
		native := avahitest.New("host")
		native.FailClient = avahi.CodeNoDaemon

		w, err := NewAvahiWrapper(native, nil, nil)
		assert.Nil(t, w)
		assert.ErrorIs(t, err, ErrWrapperCreate)
		assert.Equal(t, []string{avahitest.PollNew, avahitest.PollFree}, native.Events())
		assert.Empty(t, native.Violations())
	})

	t.Run("wait for daemon", func(t *testing.T) {
		native := avahitest.New("host")
		cfg := DefaultConfig()
		cfg.WaitForDaemon = true

		w, err := NewAvahiWrapper(native, cfg, nil)
		require.NoError(t, err)
		defer w.Close()
		assert.Equal(t, avahi.ClientNoFail, native.Clients()[0].Flags())
	})
}

func TestAvahiWrapper_Close(t *testing.T) {
	native := avahitest.New("host")
	w, err := NewAvahiWrapper(native, nil, nil)
	require.NoError(t, err)

	require.NoError(t, w.StartBrowser("_http._tcp", &recorder{}))
	require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet, "a", "_http._tcp", "local"))
	require.True(t, native.Browsers()[0].EmitNew(1, avahi.ProtoInet, "b", "_http._tcp", "local"))
	require.Len(t, native.LiveResolvers(), 2)

	require.NoError(t, w.Close())

	assert.Equal(t, []string{
		avahitest.PollNew,
		avahitest.ClientNew,
		avahitest.BrowserNew,
		avahitest.ResolverNew,
		avahitest.ResolverNew,
		avahitest.LoopExit,
		avahitest.ResolverFree,
		avahitest.ResolverFree,
		avahitest.BrowserFree,
		avahitest.ClientFree,
		avahitest.PollFree,
	}, native.Events())
	assert.Empty(t, native.Violations())
	assert.Empty(t, native.LiveResolvers())

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, w.Close())
		assert.Equal(t, 1, native.Count(avahitest.PollFree))
	})

	t.Run("operations after close", func(t *testing.T) {
		assert.ErrorIs(t, w.StartBrowser("_http._tcp", &recorder{}), ErrWrapperClosed)
		assert.ErrorIs(t, w.Resolve(ServiceDescription{Name: "a", TypeName: "_http._tcp"}, ResolveListeners{}), ErrWrapperClosed)
		assert.ErrorIs(t, w.SetHostName("office"), ErrWrapperClosed)
		assert.NoError(t, w.StopBrowser())

		_, ok := w.HostName()
		assert.False(t, ok)
		assert.True(t, w.IsValidHostName("office"))
	})

	assert.Empty(t, native.Violations())
}

func TestAvahiWrapper_CloseWithoutBrowser(t *testing.T) {
	native := avahitest.New("host")
	w, err := NewAvahiWrapper(native, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{
		avahitest.PollNew,
		avahitest.ClientNew,
		avahitest.LoopExit,
		avahitest.ClientFree,
		avahitest.PollFree,
	}, native.Events())
	assert.Empty(t, native.Violations())
}

func TestDecodeText(t *testing.T) {
	_, err := decodeText("name", avahi.NullText())
	assert.True(t, errors.Is(err, avahi.ErrNullText))
	assert.Contains(t, err.Error(), "name")

	s, err := decodeText("name", avahi.TextOf("web"))
	require.NoError(t, err)
	assert.Equal(t, "web", s)
}
