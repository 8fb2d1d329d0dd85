package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/classsync/internal/platform/logger"
)

// Metrics owns a private registry so tests can build as many as they like.
// Every method is safe on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	reduced        *prometheus.CounterVec
	ignored        *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	bufferDropped  prometheus.Counter
	commands       *prometheus.CounterVec
	snapshotLoad   *prometheus.HistogramVec
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	apiInflight    prometheus.Gauge
	stateVersion   prometheus.Gauge
	onlineUsers    prometheus.Gauge
	pgStats        *prometheus.GaugeVec
	redisUp        prometheus.Gauge
	redisPingSecs  prometheus.Gauge
	scrapeInterval time.Duration
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		reduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "store_events_total",
			Help:      "Events dispatched to the store by kind and whether they changed state.",
		}, []string{"kind", "changed"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "feed_ignored_total",
			Help:      "Inbound feed events dropped before reaching the store.",
		}, []string{"source", "reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "feed_reconnects_total",
			Help:      "Transport reconnect attempts by source.",
		}, []string{"source"}),
		bufferDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "feed_buffer_overflow_total",
			Help:      "Pre-snapshot buffers discarded because they overflowed.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "commands_total",
			Help:      "Commands by name and outcome (confirmed, rolled_back, failed).",
		}, []string{"command", "outcome"}),
		snapshotLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "classsync",
			Name:      "snapshot_load_seconds",
			Help:      "Snapshot load latency by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"outcome"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classsync",
			Name:      "api_requests_total",
			Help:      "Local API requests.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "classsync",
			Name:      "api_request_duration_seconds",
			Help:      "Local API latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "api_inflight_requests",
			Help:      "Local API requests in flight.",
		}),
		stateVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "store_version",
			Help:      "Version of the current store state.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "presence_online_users",
			Help:      "Users currently online.",
		}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "postgres_pool",
			Help:      "database/sql pool stats of the backend connection.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "redis_up",
			Help:      "1 when the last Redis ping succeeded.",
		}),
		redisPingSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classsync",
			Name:      "redis_ping_seconds",
			Help:      "Latency of the last Redis ping.",
		}),
		scrapeInterval: 15 * time.Second,
	}
	reg.MustRegister(
		m.reduced, m.ignored, m.reconnects, m.bufferDropped, m.commands, m.snapshotLoad,
		m.apiRequests, m.apiLatency, m.apiInflight, m.stateVersion, m.onlineUsers,
		m.pgStats, m.redisUp, m.redisPingSecs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Reduced satisfies the store observer hook.
func (m *Metrics) Reduced(kind string, changed bool) {
	if m == nil {
		return
	}
	c := "false"
	if changed {
		c = "true"
	}
	m.reduced.WithLabelValues(kind, c).Inc()
}

func (m *Metrics) ObserveState(version uint64, online int) {
	if m == nil {
		return
	}
	m.stateVersion.Set(float64(version))
	m.onlineUsers.Set(float64(online))
}

func (m *Metrics) IncIgnored(source, reason string) {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) IncReconnect(source string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(source).Inc()
}

func (m *Metrics) IncBufferOverflow() {
	if m == nil {
		return
	}
	m.bufferDropped.Inc()
}

func (m *Metrics) IncCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) ObserveSnapshot(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.snapshotLoad.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPingSecs.Set(time.Since(start).Seconds())
			}
		}
	}()
}
