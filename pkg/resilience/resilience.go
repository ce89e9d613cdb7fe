package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"callfeed-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

const (
	// openThreshold is the consecutive-failure count that opens the circuit
	openThreshold = 3

	// cooldown is how long the circuit stays open before probing again
	cooldown = 10 * time.Second

	// maxHalfOpenAttempts bounds probe requests in the half-open state
	maxHalfOpenAttempts = 3
)

// GatewayResilience wraps payment gateway calls with a circuit breaker.
// Calls are never retried: a card charge is not idempotent, so each
// operation runs at most once and failures only feed the breaker.
type GatewayResilience struct {
	mu                  sync.RWMutex
	state               CircuitBreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
	metrics             *gatewayMetrics
}

// gatewayMetrics tracks payment gateway call metrics
type gatewayMetrics struct {
	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	circuitBreakerState prometheus.Gauge
}

var (
	gatewayMetricsInstance *gatewayMetrics
	gatewayMetricsOnce     sync.Once
)

func init() {
	gatewayMetricsOnce.Do(func() {
		gatewayMetricsInstance = &gatewayMetrics{
			requestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payment_gateway_requests_total",
					Help: "Total number of payment gateway requests",
				},
				[]string{"operation", "status"},
			),
			errorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payment_gateway_errors_total",
					Help: "Total number of payment gateway errors",
				},
				[]string{"operation", "error_type"},
			),
			circuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "payment_gateway_circuit_breaker_state",
				Help: "State of payment gateway circuit breaker (0=closed, 1=half_open, 2=open)",
			}),
		}
		prometheus.MustRegister(gatewayMetricsInstance.requestsTotal)
		prometheus.MustRegister(gatewayMetricsInstance.errorsTotal)
		prometheus.MustRegister(gatewayMetricsInstance.circuitBreakerState)
	})
}

// NewGatewayResilience creates a new payment gateway circuit breaker
func NewGatewayResilience() *GatewayResilience {
	return &GatewayResilience{
		state:   CircuitBreakerClosed,
		metrics: gatewayMetricsInstance,
	}
}

// Execute runs one gateway call under the circuit breaker. The call runs
// at most once; an open circuit rejects it before any network I/O.
func (r *GatewayResilience) Execute(ctx context.Context, operation string, fn func() error) error {
	if err := r.admit(operation); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	if err == nil {
		r.recordSuccess(operation)
		return nil
	}
	r.recordFailure(operation, err)
	return err
}

func (r *GatewayResilience) admit(operation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case CircuitBreakerOpen:
		if time.Since(r.lastFailureTime) > cooldown {
			r.state = CircuitBreakerHalfOpen
			r.halfOpenAttempts = 0
			r.metrics.circuitBreakerState.Set(1)
			logger.Warn("Payment gateway circuit breaker HALF-OPEN - cooling down period elapsed",
				zap.String("operation", operation),
			)
			return nil
		}
		r.metrics.requestsTotal.WithLabelValues(operation, "circuit_breaker_open").Inc()
		logger.Error("Payment gateway circuit breaker is OPEN - request blocked",
			zap.String("operation", operation),
		)
		return fmt.Errorf("payment gateway temporarily unavailable due to repeated failures (circuit breaker open)")

	case CircuitBreakerHalfOpen:
		if r.halfOpenAttempts >= maxHalfOpenAttempts {
			r.metrics.requestsTotal.WithLabelValues(operation, "circuit_breaker_open").Inc()
			return fmt.Errorf("payment gateway temporarily unavailable (half-open probe limit reached)")
		}
		r.halfOpenAttempts++
		logger.Warn("Payment gateway circuit breaker HALF-OPEN - allowing probe request",
			zap.String("operation", operation),
			zap.Int("attempt", r.halfOpenAttempts),
		)
	}

	return nil
}

func (r *GatewayResilience) recordSuccess(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != CircuitBreakerClosed {
		logger.Info("Payment gateway circuit breaker CLOSED - recovered",
			zap.String("operation", operation),
		)
	}
	r.state = CircuitBreakerClosed
	r.consecutiveFailures = 0
	r.halfOpenAttempts = 0
	r.lastFailureTime = time.Time{}
	r.metrics.circuitBreakerState.Set(0)
	r.metrics.requestsTotal.WithLabelValues(operation, "success").Inc()
}

func (r *GatewayResilience) recordFailure(operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveFailures++
	r.lastFailureTime = time.Now()

	r.metrics.errorsTotal.WithLabelValues(operation, classifyError(err)).Inc()
	r.metrics.requestsTotal.WithLabelValues(operation, "failure").Inc()

	if r.consecutiveFailures >= openThreshold {
		r.state = CircuitBreakerOpen
		r.metrics.circuitBreakerState.Set(2)
		logger.Error("Payment gateway circuit breaker OPEN - too many consecutive failures",
			zap.String("operation", operation),
			zap.Int("consecutive_failures", r.consecutiveFailures),
		)
	}
}

// GetCircuitBreakerState returns the current circuit breaker state
func (r *GatewayResilience) GetCircuitBreakerState() CircuitBreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "rejected"):
		return "rejected"
	case strings.Contains(errMsg, "circuit breaker"):
		return "circuit_breaker"
	default:
		return "unknown"
	}
}
