// Package config loads server configuration from the environment and an
// optional erdflow.yaml file with deployment defaults.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/erdflow/backend/pkg/errors"
)

// Metadata backend selection values for METADATA_BACKEND.
const (
	BackendSQL       = "sql"
	BackendDataverse = "dataverse"
)

// Config is the fully resolved server configuration.
type Config struct {
	Port    string
	Backend string

	Dataverse Dataverse
	Deploy    DeployDefaults
}

// Dataverse holds the Web API connection settings, read from
// DATAVERSE_BASE_URL, DATAVERSE_API_VERSION and DATAVERSE_TOKEN.
type Dataverse struct {
	BaseURL    string
	APIVersion string
	Token      string
}

// DeployDefaults seeds deploy.Config fields when a request omits them.
type DeployDefaults struct {
	PublisherPrefix  string
	PublisherName    string
	SolutionName     string
	SolutionFriendly string
	Concurrency      int
	MaxAttempts      int
	Backoff          time.Duration
}

// yamlFile is the on-disk shape of erdflow.yaml. Backoff is a Go duration
// string ("2s", "500ms").
type yamlFile struct {
	Deploy struct {
		PublisherPrefix  string `yaml:"publisherPrefix"`
		PublisherName    string `yaml:"publisherName"`
		SolutionName     string `yaml:"solutionName"`
		SolutionFriendly string `yaml:"solutionFriendly"`
		Concurrency      int    `yaml:"concurrency"`
		MaxAttempts      int    `yaml:"maxAttempts"`
		Backoff          string `yaml:"backoff"`
	} `yaml:"deploy"`
}

// LoadDotEnv loads the first .env file found among the usual locations.
// Missing files are fine; env vars may come from the process environment.
func LoadDotEnv() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			log.Printf("Loaded .env from %s", p)
			break
		}
	}
}

// Load resolves configuration from the environment, overlaying deploy
// defaults from erdflow.yaml when the file exists.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    envOr("PORT", "8080"),
		Backend: envOr("METADATA_BACKEND", BackendSQL),
		Dataverse: Dataverse{
			BaseURL:    os.Getenv("DATAVERSE_BASE_URL"),
			APIVersion: envOr("DATAVERSE_API_VERSION", "v9.2"),
			Token:      os.Getenv("DATAVERSE_TOKEN"),
		},
		Deploy: DeployDefaults{
			PublisherPrefix: envOr("PUBLISHER_PREFIX", "new"),
			SolutionName:    envOr("SOLUTION_NAME", "erdflow"),
			Concurrency:     5,
			MaxAttempts:     3,
			Backoff:         2 * time.Second,
		},
	}

	if err := cfg.overlayYAML(envOr("ERDFLOW_CONFIG", "erdflow.yaml")); err != nil {
		return nil, err
	}

	// Environment beats the file.
	if v := os.Getenv("DEPLOY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, apperrors.NewConfigurationError("DEPLOY_CONCURRENCY", fmt.Sprintf("must be a positive integer, got %q", v))
		}
		cfg.Deploy.Concurrency = n
	}

	switch cfg.Backend {
	case BackendSQL, BackendDataverse:
	default:
		return nil, apperrors.NewConfigurationError("METADATA_BACKEND",
			fmt.Sprintf("must be %q or %q, got %q", BackendSQL, BackendDataverse, cfg.Backend))
	}
	if cfg.Backend == BackendDataverse && cfg.Dataverse.BaseURL == "" {
		return nil, apperrors.NewConfigurationError("DATAVERSE_BASE_URL", "required for the dataverse backend")
	}
	return cfg, nil
}

// overlayYAML merges deploy defaults from path. A missing file is not an
// error; a malformed one is.
func (c *Config) overlayYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperrors.NewConfigurationError(path, err.Error())
	}
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return apperrors.NewConfigurationError(path, fmt.Sprintf("parse: %v", err))
	}
	d := f.Deploy
	if d.PublisherPrefix != "" {
		c.Deploy.PublisherPrefix = d.PublisherPrefix
	}
	if d.PublisherName != "" {
		c.Deploy.PublisherName = d.PublisherName
	}
	if d.SolutionName != "" {
		c.Deploy.SolutionName = d.SolutionName
	}
	if d.SolutionFriendly != "" {
		c.Deploy.SolutionFriendly = d.SolutionFriendly
	}
	if d.Concurrency > 0 {
		c.Deploy.Concurrency = d.Concurrency
	}
	if d.MaxAttempts > 0 {
		c.Deploy.MaxAttempts = d.MaxAttempts
	}
	if d.Backoff != "" {
		dur, err := time.ParseDuration(d.Backoff)
		if err != nil || dur <= 0 {
			return apperrors.NewConfigurationError(path, fmt.Sprintf("deploy.backoff must be a positive duration, got %q", d.Backoff))
		}
		c.Deploy.Backoff = dur
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
