package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/stats"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full configuration.
type Config struct {
	Merge   MergeConfig   `yaml:"merge" json:"merge"`
	Input   InputConfig   `yaml:"input" json:"input"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MergeConfig controls the merge engine.
type MergeConfig struct {
	BatchSize   int     `yaml:"batch_size" json:"batch_size"`
	Online      bool    `yaml:"online" json:"online"`
	Method      string  `yaml:"method" json:"method"`
	Probability float64 `yaml:"probability" json:"probability"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
}

// InputConfig selects the trace files. Directory and Files are mutually
// exclusive.
type InputConfig struct {
	Directory string   `yaml:"directory" json:"directory"`
	Files     []string `yaml:"files" json:"files"`
}

// OutputConfig names the export destinations.
type OutputConfig struct {
	Database   string `yaml:"database" json:"database"`
	CallGraphs string `yaml:"callgraphs" json:"callgraphs"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Merge: MergeConfig{
			BatchSize:   merge.DefaultBatchSize,
			Method:      stats.MethodCNH,
			Probability: stats.DefaultProbability,
			Confidence:  stats.DefaultConfidence,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	// Strict field validation catches typos like "batchsize:".
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError reports configuration values rejected by the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Details
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks c against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	// A nil slice encodes as null, which the schema's list type rejects.
	if c.Input.Files == nil {
		c.Input.Files = []string{}
	}
	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: strings.TrimSpace(cueerrors.Details(err, nil))}
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", l.Level)
}
