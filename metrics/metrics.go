// Package metrics exposes proxy counters in the Prometheus format.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deceive"

type Collector struct {
	registry *prometheus.Registry

	sessionsActive     prometheus.Gauge
	sessionsTotal      prometheus.Counter
	handshakeFailures  prometheus.Counter
	dialFailures       prometheus.Counter
	presenceRewrites   prometheus.Counter
	rewriteFailures    prometheus.Counter
	rosterInjections   prometheus.Counter
	fakePresencesSent  prometheus.Counter
	messagesSent       prometheus.Counter
	commands           *prometheus.CounterVec
	commandsRateLimits prometheus.Counter
	bytesForwarded     *prometheus.CounterVec
}

// Creates a collector with its own registry, so tests and multiple servers
// in one process do not collide.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of proxied chat sessions currently open",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of proxied chat sessions opened",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_handshake_failures_total",
			Help:      "TLS handshakes with the game client that failed",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_dial_failures_total",
			Help:      "Failed attempts to connect to the chat server",
		}),
		presenceRewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_rewrites_total",
			Help:      "Presence chunks rewritten and forwarded",
		}),
		rewriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_rewrite_failures_total",
			Help:      "Presence chunks that could not be rewritten; each closes its session",
		}),
		rosterInjections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_injections_total",
			Help:      "Times the fake contact was added to a roster",
		}),
		fakePresencesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fake_presences_sent_total",
			Help:      "Synthetic presences sent for the fake contact",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fake_messages_sent_total",
			Help:      "Chat messages sent from the fake contact",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_commands_total",
			Help:      "Messages received by the fake contact, by recognized command",
		}, []string{"command"}),
		commandsRateLimits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_commands_rate_limited_total",
			Help:      "Messages to the fake contact dropped by the rate limiter",
		}),
		bytesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_forwarded_total",
			Help:      "Bytes written to either side of a session",
		}, []string{"direction"}),
	}
	c.registry.MustRegister(
		c.sessionsActive,
		c.sessionsTotal,
		c.handshakeFailures,
		c.dialFailures,
		c.presenceRewrites,
		c.rewriteFailures,
		c.rosterInjections,
		c.fakePresencesSent,
		c.messagesSent,
		c.commands,
		c.commandsRateLimits,
		c.bytesForwarded,
	)
	return c
}

// HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.sessionsTotal.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Inc()
}

func (c *Collector) DialFailed() {
	if c == nil {
		return
	}
	c.dialFailures.Inc()
}

func (c *Collector) PresenceRewritten() {
	if c == nil {
		return
	}
	c.presenceRewrites.Inc()
}

func (c *Collector) RewriteFailed() {
	if c == nil {
		return
	}
	c.rewriteFailures.Inc()
}

func (c *Collector) RosterInjected() {
	if c == nil {
		return
	}
	c.rosterInjections.Inc()
}

func (c *Collector) FakePresenceSent() {
	if c == nil {
		return
	}
	c.fakePresencesSent.Inc()
}

func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Inc()
}

func (c *Collector) CommandReceived(command string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(command).Inc()
}

func (c *Collector) CommandRateLimited() {
	if c == nil {
		return
	}
	c.commandsRateLimits.Inc()
}

// direction is "outgoing" (to the chat server) or "incoming" (to the game client).
func (c *Collector) BytesForwarded(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesForwarded.WithLabelValues(direction).Add(float64(n))
}
