package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the backends see. A nil *Metrics records nothing.
type Metrics struct {
	browseEvents    *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	activeBrowsers  *prometheus.GaugeVec
	activeResolvers *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		browseEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landiscovery",
			Name:      "browse_events_total",
			Help:      "Browse events delivered by the backend, by event kind.",
		}, []string{"backend", "event"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landiscovery",
			Name:      "resolutions_total",
			Help:      "Resolution outcomes, by result.",
		}, []string{"backend", "result"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landiscovery",
			Name:      "decode_failures_total",
			Help:      "Events dropped because a string could not be decoded.",
		}, []string{"backend", "callback"}),
		activeBrowsers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "landiscovery",
			Name:      "active_browsers",
			Help:      "Browse subscriptions currently open.",
		}, []string{"backend"}),
		activeResolvers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "landiscovery",
			Name:      "active_resolvers",
			Help:      "Resolve requests currently outstanding.",
		}, []string{"backend"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.browseEvents, m.resolutions, m.decodeFailures, m.activeBrowsers, m.activeResolvers,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) browseEvent(backend, event string) {
	if m == nil {
		return
	}
	m.browseEvents.WithLabelValues(backend, event).Inc()
}

func (m *Metrics) resolution(backend, result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) decodeFailure(backend, callback string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(backend, callback).Inc()
}

func (m *Metrics) browsers(backend string, delta float64) {
	if m == nil {
		return
	}
	m.activeBrowsers.WithLabelValues(backend).Add(delta)
}

func (m *Metrics) resolvers(backend string, delta float64) {
	if m == nil {
		return
	}
	m.activeResolvers.WithLabelValues(backend).Add(delta)
}
