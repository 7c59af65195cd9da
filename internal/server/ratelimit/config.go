package ratelimit

import (
	"net/http"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL         time.Duration
	EndpointConfigs []EndpointConfig
}

// GenerationEndpoints limits the endpoints that start generation jobs.
func GenerationEndpoints(perMinute, burst int) []EndpointConfig {
	return []EndpointConfig{
		{Path: "/prompts", Method: http.MethodPost, Limit: perMinute, Window: time.Minute, Burst: burst},
		{Path: "/prompts/refresh", Method: http.MethodPost, Limit: perMinute, Window: time.Minute, Burst: burst},
	}
}
