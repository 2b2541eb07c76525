// Package config loads the writer configuration from a YAML file with
// environment-variable overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/beamlinehq/hitwriter/internal/logging"
)

// Config is the full configuration surface.
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Collections CollectionsConfig `yaml:"collections"`
	Output      OutputConfig      `yaml:"output"`
	Source      SourceConfig      `yaml:"source"`
	Perf        PerfConfig        `yaml:"perf"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Notify      NotifyConfig      `yaml:"notify"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Summary     SummaryConfig     `yaml:"summary"`
	Logging     logging.Config    `yaml:"logging"`
}

// RunConfig identifies the run being written.
type RunConfig struct {
	DetectorName string `yaml:"detector_name"`
	RunNumber    uint32 `yaml:"run_number"`
	DumpMCTruth  bool   `yaml:"dump_mc_truth"`
	MaxEvents    uint64 `yaml:"max_events"` // 0 = unbounded
}

// CollectionsConfig carries the two mutually exclusive assignment styles.
// OutputCollectionName (short form) names a single collection for every
// detector; DetectorAssignment (long form) maps detector names to collection
// names. When both are set the short form wins and a warning is logged.
type CollectionsConfig struct {
	OutputCollectionName string            `yaml:"output_collection_name"`
	DetectorAssignment   map[string]string `yaml:"detector_assignment"`
}

// OutputConfig describes the run artifacts and where they are published.
type OutputConfig struct {
	FileName     string `yaml:"file_name"`
	GeometryFile string `yaml:"geometry_file"`
	Dir          string `yaml:"dir"` // local working directory for open run files

	// Publication target after close. "local" keeps artifacts in Dir layout;
	// "gcs"/"s3" upload to the bucket.
	Backend    string `yaml:"backend"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
}

// SourceConfig describes where per-event hit captures come from.
type SourceConfig struct {
	Mode string `yaml:"mode"` // "local" | "blob" | "spool"

	GeometryFile string `yaml:"geometry_file"` // detector registry path
	LocalPath    string `yaml:"local_path"`    // capture directory (local/spool)
	BlobURL      string `yaml:"blob_url"`      // gs://bucket or s3://bucket
	BlobPrefix   string `yaml:"blob_prefix"`
}

// PerfConfig tunes the event pipeline.
type PerfConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NotifyConfig controls run-completion notices.
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	BackupDir string `yaml:"backup_dir"`
}

// CatalogConfig controls the optional Postgres run catalog.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Namespace   string `yaml:"namespace"`
}

// SummaryConfig controls the run summary file.
type SummaryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Run: RunConfig{
			DetectorName: "telescope",
			RunNumber:    1,
		},
		Output: OutputConfig{
			FileName:     "output.hits.parquet",
			GeometryFile: "telescope.gear.xml",
			Dir:          "./data",
			Backend:      "local",
			Prefix:       "runs/",
		},
		Source: SourceConfig{
			Mode:         "local",
			GeometryFile: "geometry.yaml",
		},
		Perf: PerfConfig{
			Workers:   1,
			QueueSize: 16,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Summary: SummaryConfig{
			Enabled: true,
			Dir:     "./data",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads the config file (optional) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides deployment knobs from the environment.
func (c *Config) applyEnv() {
	c.Output.Dir = getenvDefault("OUTPUT_DIR", c.Output.Dir)
	c.Output.Backend = getenvDefault("OUTPUT_BACKEND", c.Output.Backend)
	c.Output.Bucket = getenvDefault("OUTPUT_BUCKET", c.Output.Bucket)
	c.Source.LocalPath = getenvDefault("SOURCE_PATH", c.Source.LocalPath)
	c.Catalog.PostgresDSN = getenvDefault("CATALOG_DSN", c.Catalog.PostgresDSN)

	if v := os.Getenv("WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Perf.Workers = parsed
		}
	}
	if v := os.Getenv("MAX_EVENTS"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Run.MaxEvents = parsed
		}
	}
	if os.Getenv("METRICS_ENABLED") == "true" {
		c.Metrics.Enabled = true
	}
}

// Validate rejects configurations that cannot possibly run.
func (c *Config) Validate() error {
	if c.Run.DetectorName == "" {
		return fmt.Errorf("config: run.detector_name is required")
	}
	if c.Run.RunNumber == 0 {
		return fmt.Errorf("config: run.run_number must be positive")
	}
	if c.Output.FileName == "" {
		return fmt.Errorf("config: output.file_name is required")
	}
	if c.Source.GeometryFile == "" {
		return fmt.Errorf("config: source.geometry_file is required")
	}

	switch c.Output.Backend {
	case "local":
		if c.Output.Dir == "" {
			return fmt.Errorf("config: output.dir required for local backend")
		}
	case "gcs", "s3":
		if c.Output.Bucket == "" {
			return fmt.Errorf("config: output.bucket required for %s backend", c.Output.Backend)
		}
	default:
		return fmt.Errorf("config: unknown output backend %q", c.Output.Backend)
	}

	switch c.Source.Mode {
	case "local", "spool":
		if c.Source.LocalPath == "" {
			return fmt.Errorf("config: source.local_path required for %s mode", c.Source.Mode)
		}
	case "blob":
		if c.Source.BlobURL == "" {
			return fmt.Errorf("config: source.blob_url required for blob mode")
		}
	default:
		return fmt.Errorf("config: unknown source mode %q", c.Source.Mode)
	}

	if c.Perf.Workers < 1 {
		c.Perf.Workers = 1
	}
	if c.Perf.QueueSize < 1 {
		c.Perf.QueueSize = c.Perf.Workers * 2
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
