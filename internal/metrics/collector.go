package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "lifxd"

// ServiceSource provides service counters. *service.Service implements it.
type ServiceSource interface {
	Stats() service.Stats
}

// TransportSource provides socket counters. *transport.UDPTransport
// implements it.
type TransportSource interface {
	Stats() transport.Stats
}

// Option configures a Collector.
type Option func(*collectorConfig)

type collectorConfig struct {
	namespace string
	registry  prometheus.Registerer
	transport TransportSource
}

// WithNamespace sets the metrics namespace. Default: "lifxd".
func WithNamespace(namespace string) Option {
	return func(c *collectorConfig) {
		c.namespace = namespace
	}
}

// WithRegistry sets the registerer. Default: prometheus.DefaultRegisterer.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *collectorConfig) {
		c.registry = registry
	}
}

// WithTransport adds UDP socket counters.
func WithTransport(src TransportSource) Option {
	return func(c *collectorConfig) {
		c.transport = src
	}
}

// Ensure Collector can listen to the service.
var _ light.ChangeListener = (*Collector)(nil)

// Collector owns the service's Prometheus metrics.
type Collector struct {
	propertyChanges *prometheus.CounterVec
}

// NewCollector registers every metric.
//
// Parameters:
//   - src: Service counters, sampled at scrape time
//   - opts: Functional options
//
// Returns:
//   - *Collector: Register it as a change listener to count property changes
//   - error: If a metric is already registered
func NewCollector(src ServiceSource, opts ...Option) (*Collector, error) {
	cfg := collectorConfig{
		namespace: DefaultNamespace,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Collector{
		propertyChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: "light",
				Name:      "property_changes_total",
				Help:      "Light property changes by property.",
			},
			[]string{"property"},
		),
	}

	collectors := []prometheus.Collector{
		c.propertyChanges,
		gauge(cfg.namespace, "light", "tracked", "Lights discovered.",
			func() float64 { return float64(src.Stats().Lights) }),
		gauge(cfg.namespace, "light", "reachable", "Lights heard from recently.",
			func() float64 { return float64(src.Stats().Reachable) }),
		counter(cfg.namespace, "service", "frames_handled_total", "Inbound frames dispatched.",
			func() float64 { return float64(src.Stats().FramesHandled) }),
		counter(cfg.namespace, "correlation", "sent_total", "Correlated requests sent.",
			func() float64 { return float64(src.Stats().Correlation.Sent) }),
		counter(cfg.namespace, "correlation", "retries_total", "Correlated request retransmissions.",
			func() float64 { return float64(src.Stats().Correlation.Retries) }),
		counter(cfg.namespace, "correlation", "timeouts_total", "Requests that ran out of attempts.",
			func() float64 { return float64(src.Stats().Correlation.Timeouts) }),
		counter(cfg.namespace, "correlation", "completed_total", "Requests answered by the device.",
			func() float64 { return float64(src.Stats().Correlation.Completed) }),
		gauge(cfg.namespace, "correlation", "pending", "Requests awaiting a reply.",
			func() float64 { return float64(src.Stats().Correlation.Pending) }),
	}

	if t := cfg.transport; t != nil {
		collectors = append(collectors,
			counter(cfg.namespace, "udp", "frames_received_total", "Datagrams decoded.",
				func() float64 { return float64(t.Stats().FramesRx) }),
			counter(cfg.namespace, "udp", "frames_sent_total", "Datagrams written.",
				func() float64 { return float64(t.Stats().FramesTx) }),
			counter(cfg.namespace, "udp", "frames_dropped_total", "Datagrams dropped on a full queue.",
				func() float64 { return float64(t.Stats().FramesDropped) }),
			counter(cfg.namespace, "udp", "decode_errors_total", "Datagrams that failed to decode.",
				func() float64 { return float64(t.Stats().DecodeErrors) }),
			counter(cfg.namespace, "udp", "reconnects_total", "Socket rebinds.",
				func() float64 { return float64(t.Stats().ReconnectsTotal) }),
			gauge(cfg.namespace, "udp", "connected", "1 while the socket is bound.",
				func() float64 {
					if t.Stats().Connected {
						return 1
					}
					return 0
				}),
		)
	}

	for _, col := range collectors {
		if err := cfg.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnLightChange counts the change by property.
func (c *Collector) OnLightChange(_ *light.Light, p light.Property, _, _ any) {
	c.propertyChanges.WithLabelValues(p.String()).Inc()
}

func gauge(namespace, subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func counter(namespace, subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}
