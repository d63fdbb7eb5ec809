package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// DataDir is the directory holding one SQLite file per session.
	DataDir string
	// ServiceSecret signs and verifies the control-surface bearer tokens.
	ServiceSecret string
	// EventBusURL is the base URL of the event bus. Empty disables publishing.
	EventBusURL string
	// MaxQueueDepth bounds the number of queued prompts per session.
	MaxQueueDepth  int
	Debug          bool
	AllowedOrigins []string
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr          *string
	DataDir       *string
	ServiceSecret *string
	EventBusURL   *string
	MaxQueueDepth *int
	Debug         *bool
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := 3006
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dataDir := os.Getenv("RELAY_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	if overrides.DataDir != nil {
		dataDir = *overrides.DataDir
	}

	serviceSecret := os.Getenv("RELAY_SERVICE_SECRET")
	if overrides.ServiceSecret != nil {
		serviceSecret = *overrides.ServiceSecret
	}
	if serviceSecret == "" {
		return nil, fmt.Errorf("RELAY_SERVICE_SECRET environment variable is required")
	}

	eventBusURL := os.Getenv("RELAY_EVENT_BUS_URL")
	if overrides.EventBusURL != nil {
		eventBusURL = *overrides.EventBusURL
	}

	maxQueueDepth := 100
	if depthStr := os.Getenv("RELAY_MAX_QUEUE_DEPTH"); depthStr != "" {
		if d, err := strconv.Atoi(depthStr); err == nil && d > 0 {
			maxQueueDepth = d
		}
	}
	if overrides.MaxQueueDepth != nil {
		maxQueueDepth = *overrides.MaxQueueDepth
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	return &Config{
		Addr:           addr,
		DataDir:        dataDir,
		ServiceSecret:  serviceSecret,
		EventBusURL:    eventBusURL,
		MaxQueueDepth:  maxQueueDepth,
		Debug:          debug,
		AllowedOrigins: []string{"*"}, // For self-hosted, allow all origins
	}, nil
}
