// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package config loads and persists swarmcore's runtime configuration: a
// JSON file overlaid with environment variables, guarded for concurrent
// access by callers that hot-reload it.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// BusConfig tunes the in-process MessageBus. HistoryCapacity feeds
// bus.WithHistoryCapacity and RequestTimeoutMs feeds
// bus.WithDefaultRequestTimeout (used by Bus.SendRequestDefault); both are
// passed to bus.New as Options by the host wiring the bus together.
type BusConfig struct {
	HistoryCapacity  int `json:"history_capacity" label:"History Capacity" env:"SWARMCORE_BUS_HISTORY_CAPACITY"`
	RequestTimeoutMs int `json:"request_timeout_ms" label:"Request Timeout (ms)" env:"SWARMCORE_BUS_REQUEST_TIMEOUT_MS"`
}

// CNPConfig tunes the Contract-Net Protocol Manager. Each field maps to a
// cnp.Option passed to cnp.New: DefaultDeadlineMs to WithDefaultDeadline,
// CleanupGraceMs to WithCleanupGrace, and AnnounceRateLimitPerSec/Burst to
// WithAnnounceRateLimit.
type CNPConfig struct {
	DefaultDeadlineMs       int64   `json:"default_deadline_ms" label:"Default Deadline (ms)" env:"SWARMCORE_CNP_DEFAULT_DEADLINE_MS"`
	CleanupGraceMs          int64   `json:"cleanup_grace_ms" label:"Cleanup Grace (ms)" env:"SWARMCORE_CNP_CLEANUP_GRACE_MS"`
	AnnounceRateLimitPerSec float64 `json:"announce_rate_limit_per_sec" label:"Announce Rate Limit (/s)" env:"SWARMCORE_CNP_ANNOUNCE_RATE_LIMIT"`
	AnnounceRateBurst       int     `json:"announce_rate_burst" label:"Announce Rate Burst" env:"SWARMCORE_CNP_ANNOUNCE_RATE_BURST"`
}

// RegistryConfig tunes capability scoring and cleanup. MaxRange and
// AvailabilityLoadCeiling are applied per agent via
// capability.WithMaxRange/capability.WithAvailabilityLoadCeiling when the
// host constructs each Capability; InactiveAfterMs is the idleAfter
// argument a host passes to Registry.CleanupIdle on its sweep interval.
type RegistryConfig struct {
	MaxRange                float64 `json:"max_range" label:"Max Range" env:"SWARMCORE_REGISTRY_MAX_RANGE"`
	AvailabilityLoadCeiling float64 `json:"availability_load_ceiling" label:"Availability Load Ceiling" env:"SWARMCORE_REGISTRY_LOAD_CEILING"`
	InactiveAfterMs         int64   `json:"inactive_after_ms" label:"Inactive After (ms)" env:"SWARMCORE_REGISTRY_INACTIVE_AFTER_MS"`
}

// ConversationConfig tunes the idle-timeout behavior of tracked
// conversations. TimeoutAfterMs is the timeoutAfter duration a host passes
// to conversation.New.
type ConversationConfig struct {
	TimeoutAfterMs int64 `json:"timeout_after_ms" label:"Timeout After (ms)" env:"SWARMCORE_CONVERSATION_TIMEOUT_AFTER_MS"`
}

// LogConfig controls structured log verbosity.
type LogConfig struct {
	Level string `json:"level" label:"Log Level" env:"SWARMCORE_LOG_LEVEL"`
}

type Config struct {
	Bus          BusConfig          `json:"bus" label:"Message Bus"`
	CNP          CNPConfig          `json:"cnp" label:"Contract-Net Protocol"`
	Registry     RegistryConfig     `json:"registry" label:"Capability Registry"`
	Conversation ConversationConfig `json:"conversation" label:"Conversations"`
	Log          LogConfig          `json:"log" label:"Logging"`
	mu           sync.RWMutex
}

func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			HistoryCapacity:  1024,
			RequestTimeoutMs: 5000,
		},
		CNP: CNPConfig{
			DefaultDeadlineMs:       30000,
			CleanupGraceMs:          300000,
			AnnounceRateLimitPerSec: 0, // 0 = unlimited
			AnnounceRateBurst:       1,
		},
		Registry: RegistryConfig{
			MaxRange:                128.0,
			AvailabilityLoadCeiling: 0.8,
			InactiveAfterMs:         600000,
		},
		Conversation: ConversationConfig{
			TimeoutAfterMs: 120000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads path as JSON, falling back to defaults when the file
// doesn't exist, then overlays any SWARMCORE_* environment variables on
// top via env.Parse so deployments can override individual fields
// without touching the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return saveConfigLocked(path, cfg)
}

// SaveConfigLocked writes cfg to path without acquiring cfg's mutex. Use
// this when the caller manages synchronization externally.
func SaveConfigLocked(path string, cfg *Config) error {
	return saveConfigLocked(path, cfg)
}

func saveConfigLocked(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// CopyFrom copies all configuration fields from src into c. The caller
// must hold c's write lock. src's mutex is not acquired.
func (c *Config) CopyFrom(src *Config) {
	c.Bus = src.Bus
	c.CNP = src.CNP
	c.Registry = src.Registry
	c.Conversation = src.Conversation
	c.Log = src.Log
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
