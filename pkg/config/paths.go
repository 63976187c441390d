package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvSwarmcoreConfig = "SWARMCORE_CONFIG"
	EnvSwarmcoreHome   = "SWARMCORE_HOME"
)

// RuntimePaths locates the on-disk config file and the directory that
// holds it, resolved from environment overrides or a conventional home.
type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvSwarmcoreConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvSwarmcoreHome)))
	if homeDir == "" {
		homeDir = defaultSwarmcoreHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultSwarmcoreHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".swarmcore"
	}
	return filepath.Join(home, ".swarmcore")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
	}
}
