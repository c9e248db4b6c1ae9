// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command governor starts the Strait schema governance HTTP server.
//
// This is the main entry point for the containerized governor service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - GOVERNOR_PORT: HTTP server port (default: 12260)
//   - STRAIT_LOG_LEVEL: debug, info, warn, error (default: info)
//   - STRAIT_LOG_DIR: directory for JSON log files (optional)
//   - STRAIT_POLICY_PATH: governance policy YAML (default: configs/governance.yaml)
//   - STRAIT_TEAMS_PATH: team directory YAML (default: configs/teams.yaml)
//   - STRAIT_STORE_BACKEND: badger, redis, memory (default: badger)
//   - STRAIT_DATA_DIR: BadgerDB directory (default: ./data/governor)
//   - STRAIT_REDIS_ADDR: host:port for the redis backend
//   - STRAIT_REDIS_PASSWORD: redis AUTH password (optional)
//   - STRAIT_REDIS_DB: redis database index (default: 0)
//   - STRAIT_DETECTOR_CMD: breaking-change detector binary (optional)
//   - STRAIT_DETECTOR_ARGS: detector arguments, space separated;
//     {current} and {baseline} expand to schema payload paths
//   - STRAIT_WEBHOOK_URL: default notification endpoint (optional)
//   - STRAIT_WEBHOOK_CHANNELS: per-team endpoints, "team=url,team=url"
//   - STRAIT_WEBHOOK_SIGNING_KEY: HMAC key for webhook signatures (optional)
//   - STRAIT_ARCHIVE_BUCKET: GCS bucket for aged audit records (optional)
//   - STRAIT_ARCHIVE_PREFIX: object name prefix (default: audit/)
//   - STRAIT_ARCHIVE_RETENTION_DAYS: hot-store retention (default: 90)
//
// Telemetry exporters are configured through STRAIT_TRACE_EXPORTER,
// STRAIT_METRIC_EXPORTER, STRAIT_OTLP_ENDPOINT, and STRAIT_ENV.
//
// # Usage
//
//	# Build
//	go build -o governor ./cmd/governor
//
//	# Run
//	./governor
//
//	# Or via container
//	podman-compose up governor
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/strait/services/governor"
)

func main() {
	// Setup structured logging for startup; the service installs its
	// own logger once configuration is parsed.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := governor.Config{
		Port:              getEnvInt("GOVERNOR_PORT", 12260),
		LogLevel:          getEnvString("STRAIT_LOG_LEVEL", "info"),
		LogDir:            os.Getenv("STRAIT_LOG_DIR"),
		PolicyPath:        getEnvString("STRAIT_POLICY_PATH", "configs/governance.yaml"),
		TeamsPath:         getEnvString("STRAIT_TEAMS_PATH", "configs/teams.yaml"),
		StoreBackend:      getEnvString("STRAIT_STORE_BACKEND", "badger"),
		DataDir:           getEnvString("STRAIT_DATA_DIR", "./data/governor"),
		RedisAddr:         os.Getenv("STRAIT_REDIS_ADDR"),
		RedisPassword:     os.Getenv("STRAIT_REDIS_PASSWORD"),
		RedisDB:           getEnvInt("STRAIT_REDIS_DB", 0),
		DetectorCommand:   os.Getenv("STRAIT_DETECTOR_CMD"),
		DetectorArgs:      strings.Fields(os.Getenv("STRAIT_DETECTOR_ARGS")),
		WebhookURL:        os.Getenv("STRAIT_WEBHOOK_URL"),
		WebhookChannels:   parseChannels(os.Getenv("STRAIT_WEBHOOK_CHANNELS")),
		WebhookSigningKey: os.Getenv("STRAIT_WEBHOOK_SIGNING_KEY"),
		ArchiveBucket:     os.Getenv("STRAIT_ARCHIVE_BUCKET"),
		ArchivePrefix:     os.Getenv("STRAIT_ARCHIVE_PREFIX"),
		ArchiveRetention:  time.Duration(getEnvInt("STRAIT_ARCHIVE_RETENTION_DAYS", 90)) * 24 * time.Hour,
	}

	slog.Info("Starting governor",
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
		"policy_path", cfg.PolicyPath,
		"detector", cfg.DetectorCommand,
	)

	svc, err := governor.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create governor: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Governor error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// parseChannels parses "team=url,team=url" into a channel map.
// Malformed pairs are skipped.
func parseChannels(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	channels := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		team, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || team == "" || url == "" {
			continue
		}
		channels[team] = url
	}

	if len(channels) == 0 {
		return nil
	}
	return channels
}
