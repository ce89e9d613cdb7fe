// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// LongTimeout is for complex operations or batch processing
	LongTimeout = 60 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Call history constants
const (
	// HistoryPageSize is the default number of records per page load
	HistoryPageSize = 50

	// HistoryWindowCapacity is the bound on in-memory materialized rows
	HistoryWindowCapacity = 150

	// GroupCallLivenessTTL is how long a group call liveness flag lives
	// without a refresh
	GroupCallLivenessTTL = 5 * time.Minute
)

// Call-related constants
const (
	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour
)

// Payment constants
const (
	// PaymentGatewayTimeout bounds each round trip to the card gateway
	PaymentGatewayTimeout = 30 * time.Second
)

// Validation constants
const (
	// MaxSearchTermLength is the maximum accepted free-text search length
	MaxSearchTermLength = 255
)
