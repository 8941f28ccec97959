// Package config holds the pipeline and query-layer configuration with
// documented defaults, an optional YAML file overlay, and environment
// variable overrides (LANDSALES_*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	// SourceDir holds the downloaded yearly archives (<year>.zip).
	SourceDir string `yaml:"source_dir"`
	// RecordsPerChunk bounds the page size of chunk artifacts.
	RecordsPerChunk int `yaml:"records_per_chunk"`
	// MaxArchiveDepth bounds nested-archive recursion during scanning.
	MaxArchiveDepth int `yaml:"max_archive_depth"`
	// ArchiveWorkers bounds concurrent archive processing.
	ArchiveWorkers int `yaml:"archive_workers"`

	Artifact ArtifactConfig `yaml:"artifact"`
	GitHub   GitHubConfig   `yaml:"github"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ArtifactConfig selects the artifact storage backend.
type ArtifactConfig struct {
	Driver string   `yaml:"driver"` // fs|s3|memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config contains S3/MinIO connection settings.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// GitHubConfig identifies the remote artifact root for read-side fetching.
type GitHubConfig struct {
	User   string `yaml:"user"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

// CacheConfig holds the per-query-class result lifetimes.
type CacheConfig struct {
	ArtifactTTLSeconds      int `yaml:"artifact_ttl_seconds"`
	AddressSearchTTLSeconds int `yaml:"address_search_ttl_seconds"`
	PropertyTTLSeconds      int `yaml:"property_ttl_seconds"`
	PriceSearchTTLSeconds   int `yaml:"price_search_ttl_seconds"`
	SweepIntervalSeconds    int `yaml:"sweep_interval_seconds"` // 0 disables the periodic sweep
}

// ArtifactTTL returns the artifact-fetch cache lifetime.
func (c *CacheConfig) ArtifactTTL() time.Duration {
	return time.Duration(c.ArtifactTTLSeconds) * time.Second
}

// AddressSearchTTL returns the address-search cache lifetime.
func (c *CacheConfig) AddressSearchTTL() time.Duration {
	return time.Duration(c.AddressSearchTTLSeconds) * time.Second
}

// PropertyTTL returns the direct-lookup cache lifetime.
func (c *CacheConfig) PropertyTTL() time.Duration {
	return time.Duration(c.PropertyTTLSeconds) * time.Second
}

// PriceSearchTTL returns the price-search cache lifetime.
func (c *CacheConfig) PriceSearchTTL() time.Duration {
	return time.Duration(c.PriceSearchTTLSeconds) * time.Second
}

// SweepInterval returns the periodic sweep cadence; zero disables it.
func (c *CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		SourceDir:       "./source",
		RecordsPerChunk: 5000,
		MaxArchiveDepth: 5,
		ArchiveWorkers:  4,
		Artifact: ArtifactConfig{
			Driver: "fs",
			FSRoot: "./output",
		},
		GitHub: GitHubConfig{Branch: "main"},
		Cache: CacheConfig{
			ArtifactTTLSeconds:      900,
			AddressSearchTTLSeconds: 300,
			PropertyTTLSeconds:      600,
			PriceSearchTTLSeconds:   300,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is not an error), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.SourceDir, "LANDSALES_SOURCE_DIR")
	setInt(&cfg.RecordsPerChunk, "LANDSALES_RECORDS_PER_CHUNK")
	setInt(&cfg.MaxArchiveDepth, "LANDSALES_MAX_ARCHIVE_DEPTH")
	setInt(&cfg.ArchiveWorkers, "LANDSALES_ARCHIVE_WORKERS")
	setString(&cfg.Artifact.Driver, "LANDSALES_ARTIFACT_DRIVER")
	setString(&cfg.Artifact.FSRoot, "LANDSALES_ARTIFACT_FS_ROOT")
	setString(&cfg.Artifact.S3.Region, "LANDSALES_S3_REGION")
	setString(&cfg.Artifact.S3.Bucket, "LANDSALES_S3_BUCKET")
	setString(&cfg.Artifact.S3.Endpoint, "LANDSALES_S3_ENDPOINT")
	setString(&cfg.Artifact.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Artifact.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setBool(&cfg.Artifact.S3.PathStyle, "LANDSALES_S3_PATH_STYLE")
	setString(&cfg.GitHub.User, "LANDSALES_GITHUB_USER")
	setString(&cfg.GitHub.Repo, "LANDSALES_GITHUB_REPO")
	setString(&cfg.GitHub.Branch, "LANDSALES_GITHUB_BRANCH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
