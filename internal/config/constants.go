package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Socket transport settings
const (
	SocketWriteTimeout   = 10 * time.Second
	SocketPongTimeout    = 60 * time.Second
	SocketPingInterval   = 50 * time.Second
	SocketMaxMessageSize = 64 << 10
	SocketSendBuffer     = 64
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Upper bound on a single history write issued from the matching path
const HistoryWriteTimeout = 3 * time.Second

// Window used by the per-IP connect limiter
const ConnectRateLimitWindow = time.Minute
