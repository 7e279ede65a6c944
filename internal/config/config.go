// Package config provides configuration loading and structs for the mentoria server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Debug        bool                   `yaml:"debug"`
	Server       ServerConfig           `yaml:"server"`
	Storage      StorageConfig          `yaml:"storage"`
	Embedding    EmbeddingConfig        `yaml:"embedding"`
	Completion   CompletionConfig       `yaml:"completion"`
	Search       SearchConfig           `yaml:"search"`
	Progress     ProgressConfig         `yaml:"progress"`
	DefaultAgent string                 `yaml:"default_agent"`
	Agents       map[string]AgentConfig `yaml:"agents"`

	// Secrets come from the environment only.
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	PublicDir      string   `yaml:"public_dir"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the progress database and index artifacts.
type StorageConfig struct {
	DatabasePath string       `yaml:"database_path"`
	IndexDir     string       `yaml:"index_dir"`
	DefaultIndex string       `yaml:"default_index"`
	IndexType    string       `yaml:"index_type"`
	Qdrant       QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the remote index connection used when index_type is qdrant.
type QdrantConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	Dimensions        int      `yaml:"dimensions"`
	CacheSize         int      `yaml:"cache_size"`
	Timeout           Duration `yaml:"timeout"`
	BatchSize         int      `yaml:"batch_size"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	ModelPath         string   `yaml:"model_path"`
	MaxTokens         int      `yaml:"max_tokens"`
}

// CompletionConfig holds language model call settings.
type CompletionConfig struct {
	Provider string   `yaml:"provider"`
	Timeout  Duration `yaml:"timeout"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	SnippetLength int `yaml:"snippet_length"`
	MaxK          int `yaml:"max_k"`
}

// ProgressConfig holds the XP, level and badge rules.
type ProgressConfig struct {
	LevelSpan    int           `yaml:"level_span"`
	XPGoal       int           `yaml:"xp_goal"`
	RecentEvents int           `yaml:"recent_events"`
	ChatXP       int           `yaml:"chat_xp"`
	LevelLabels  []string      `yaml:"level_labels"`
	Badges       []BadgeRule   `yaml:"badges"`
	GradeXP      []GradeXPRule `yaml:"grade_xp"`
}

// BadgeRule awards Name once xp reaches Threshold.
type BadgeRule struct {
	Threshold int    `yaml:"threshold"`
	Name      string `yaml:"name"`
}

// GradeXPRule awards XP for assessment scores at or above MinScore.
type GradeXPRule struct {
	MinScore int `yaml:"min_score"`
	XP       int `yaml:"xp"`
}

// Duration is a time.Duration that reads and writes YAML as a string such as "15s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads and parses the config file at path, applies defaults, expands paths,
// and validates the result. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Server.PublicDir != "" {
		cfg.Server.PublicDir = expandPath(cfg.Server.PublicDir, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied. Relative
// paths are resolved against dir.
func Default(dir string) *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, cfg.Storage.DatabasePath)
	cfg.Storage.IndexDir = filepath.Join(dir, cfg.Storage.IndexDir)
	return &cfg
}

// ApplyEnv copies secrets and endpoint overrides from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
}

// Save writes the config to path. Used for persisting agent configuration changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.IndexType {
	case "memory", "faiss", "qdrant":
	default:
		errs = append(errs, fmt.Sprintf("storage.index_type %q not supported", c.Storage.IndexType))
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		errs = append(errs, fmt.Sprintf("embedding.provider %q not supported", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "onnx" && c.Embedding.ModelPath == "" {
		errs = append(errs, "embedding.model_path is required for the onnx provider")
	}
	switch c.Completion.Provider {
	case "openai", "echo":
	default:
		errs = append(errs, fmt.Sprintf("completion.provider %q not supported", c.Completion.Provider))
	}
	if c.Search.SnippetLength <= 0 {
		errs = append(errs, "search.snippet_length must be positive")
	}
	if c.Search.MaxK <= 0 {
		errs = append(errs, "search.max_k must be positive")
	}
	errs = append(errs, c.Progress.validate()...)
	if _, ok := c.Agents[c.DefaultAgent]; !ok {
		errs = append(errs, fmt.Sprintf("default_agent %q is not configured", c.DefaultAgent))
	}
	for id, a := range c.Agents {
		if err := a.Validate(c.Search.MaxK); err != nil {
			errs = append(errs, fmt.Sprintf("agents.%s: %v", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

func (p *ProgressConfig) validate() []string {
	var errs []string
	if p.LevelSpan <= 0 {
		errs = append(errs, "progress.level_span must be positive")
	}
	if len(p.LevelLabels) == 0 {
		errs = append(errs, "progress.level_labels must not be empty")
	}
	if p.RecentEvents <= 0 {
		errs = append(errs, "progress.recent_events must be positive")
	}
	for i := 1; i < len(p.Badges); i++ {
		if p.Badges[i].Threshold <= p.Badges[i-1].Threshold {
			errs = append(errs, "progress.badges thresholds must be strictly ascending")
			break
		}
	}
	for i := 1; i < len(p.GradeXP); i++ {
		if p.GradeXP[i].MinScore >= p.GradeXP[i-1].MinScore {
			errs = append(errs, "progress.grade_xp min_score must be strictly descending")
			break
		}
	}
	return errs
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
