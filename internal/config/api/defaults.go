package api

import "time"

const (
	defaultEnabled       = true
	defaultListenAddr    = "127.0.0.1:8088"
	defaultEnableMetrics = true

	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)
