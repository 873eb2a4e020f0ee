package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 实时通道
	RelayMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Relay events by type and direction",
		},
		[]string{"type", "direction"},
	)

	RelayDroppedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Relay deliveries dropped because the client queue was full",
		},
	)

	RelayConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open relay connections by channel kind",
		},
		[]string{"kind"},
	)

	// 学习进度
	QuizAttemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_total",
			Help: "Quiz attempts by lifecycle result",
		},
		[]string{"result"},
	)

	ModuleCompletionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "module_completions_total",
			Help: "First-time module completions",
		},
	)

	PathCompletionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "career_path_completions_total",
			Help: "Career paths completed",
		},
	)

	PointsAwardedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Points credited to users",
		},
	)

	MentorMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentor_messages_total",
			Help: "Mentor chat messages by result",
		},
		[]string{"result"},
	)

	CommunityActionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "community_actions_total",
			Help: "Community posts, comments and likes",
		},
		[]string{"action"},
	)

	ExternalCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Duration of calls to external services",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "status"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			RelayMessageCounter,
			RelayDroppedCounter,
			RelayConnections,
			QuizAttemptCounter,
			ModuleCompletionCounter,
			PathCompletionCounter,
			PointsAwardedCounter,
			MentorMessageCounter,
			CommunityActionCounter,
			ExternalCallDuration,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
