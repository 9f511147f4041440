// Package config holds process-wide settings. Values come from the embedded
// defaults, an optional TOML file and REPOCHAT_* environment variables, in
// that order of precedence (last wins).
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

//go:embed defaults.toml
var defaultsTOML []byte

const EnvPrefix = "REPOCHAT"

type Values struct {
	Env       string          `toml:"env" mapstructure:"env"`
	Server    ServerValues    `toml:"server" mapstructure:"server"`
	Storage   StorageValues   `toml:"storage" mapstructure:"storage"`
	Database  DatabaseValues  `toml:"database" mapstructure:"database"`
	Graph     GraphValues     `toml:"graph" mapstructure:"graph"`
	Milvus    MilvusValues    `toml:"milvus" mapstructure:"milvus"`
	Openai    OpenaiValues    `toml:"openai" mapstructure:"openai"`
	Cognee    CogneeValues    `toml:"cognee" mapstructure:"cognee"`
	Git       GitValues       `toml:"git" mapstructure:"git"`
	Indexing  IndexingValues  `toml:"indexing" mapstructure:"indexing"`
	Agents    AgentsValues    `toml:"agents" mapstructure:"agents"`
	Query     QueryValues     `toml:"query" mapstructure:"query"`
	History   HistoryValues   `toml:"history" mapstructure:"history"`
	Removal   RemovalValues   `toml:"removal" mapstructure:"removal"`
	Telemetry TelemetryValues `toml:"telemetry" mapstructure:"telemetry"`
}

type ServerValues struct {
	Port               int64    `toml:"port" mapstructure:"port"`
	CorsAllowedOrigins []string `toml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
}

type StorageValues struct {
	Driver     string `toml:"driver" mapstructure:"driver"`
	SqlitePath string `toml:"sqlite_path" mapstructure:"sqlite_path"`
	BadgerPath string `toml:"badger_path" mapstructure:"badger_path"`
}

type DatabaseValues struct {
	Dsn string `toml:"dsn" mapstructure:"dsn"`
}

type GraphValues struct {
	Driver string `toml:"driver" mapstructure:"driver"`
}

type MilvusValues struct {
	Address        string `toml:"address" mapstructure:"address"`
	CollectionName string `toml:"collection_name" mapstructure:"collection_name"`
	SearchLimit    int64  `toml:"search_limit" mapstructure:"search_limit"`
}

type OpenaiValues struct {
	ApiKey         string `toml:"api_key" mapstructure:"api_key"`
	EmbeddingModel string `toml:"embedding_model" mapstructure:"embedding_model"`
	ChatModel      string `toml:"chat_model" mapstructure:"chat_model"`
}

type CogneeValues struct {
	BaseURL           string  `toml:"base_url" mapstructure:"base_url"`
	ApiKey            string  `toml:"api_key" mapstructure:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second" mapstructure:"requests_per_second"`
}

type GitValues struct {
	GithubToken string `toml:"github_token" mapstructure:"github_token"`
}

type IndexingValues struct {
	CloneDir          string        `toml:"clone_dir" mapstructure:"clone_dir"`
	MaxFileSizeBytes  int64         `toml:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	MaxConcurrentJobs int64         `toml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
	MaxRetries        int64         `toml:"max_retries" mapstructure:"max_retries"`
	BackoffBase       time.Duration `toml:"backoff_base" mapstructure:"backoff_base"`
	BackoffCap        time.Duration `toml:"backoff_cap" mapstructure:"backoff_cap"`
	PollInterval      time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	AutoSync          bool          `toml:"auto_sync" mapstructure:"auto_sync"`
}

type AgentsValues struct {
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
	Planner string        `toml:"planner" mapstructure:"planner"`
}

type QueryValues struct {
	MaxLength int64 `toml:"max_length" mapstructure:"max_length"`
}

type HistoryValues struct {
	PageSize int64 `toml:"page_size" mapstructure:"page_size"`
}

type RemovalValues struct {
	PurgeGraph bool `toml:"purge_graph" mapstructure:"purge_graph"`
}

type TelemetryValues struct {
	TraceExporter string `toml:"trace_exporter" mapstructure:"trace_exporter"`
	OtlpEndpoint  string `toml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	ServiceName   string `toml:"service_name" mapstructure:"service_name"`
}

var (
	mu      sync.RWMutex
	current *Values
)

func init() {
	v, err := read("")
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded defaults: %v", err))
	}
	current = v
}

// Load replaces the active configuration with defaults, the file at path
// (skipped when empty) and environment overrides.
func Load(path string) error {
	v, err := read(path)
	if err != nil {
		return err
	}
	mu.Lock()
	current = v
	mu.Unlock()
	return nil
}

// Set applies fn to a copy of the active configuration and activates it.
// It returns a function restoring the previous values, mostly for tests.
func Set(fn func(*Values)) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prev := current
	next := *prev
	next.Server.CorsAllowedOrigins = append([]string(nil), prev.Server.CorsAllowedOrigins...)
	fn(&next)
	current = &next
	return func() {
		mu.Lock()
		current = prev
		mu.Unlock()
	}
}

// Snapshot returns a copy of the active configuration.
func Snapshot() Values {
	return *get()
}

func get() *Values {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func read(path string) (*Values, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaultsTOML)); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var vals Values
	if err := v.Unmarshal(&vals); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := vals.Validate(); err != nil {
		return nil, err
	}
	return &vals, nil
}

// UnknownKeys decodes the file at path strictly and reports keys that no
// setting consumes. Viper ignores them silently, which hides typos.
func UnknownKeys(path string) ([]string, error) {
	var vals Values
	md, err := toml.DecodeFile(path, &vals)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var keys []string
	for _, k := range md.Undecoded() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys, nil
}

// WriteDefaults writes the embedded defaults, which double as a commented
// starting point for a config file.
func WriteDefaults(w io.Writer) error {
	_, err := w.Write(defaultsTOML)
	return err
}

// Validate rejects values the services cannot run with.
func (v *Values) Validate() error {
	switch v.Storage.Driver {
	case "memory", "sqlite", "badger", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", v.Storage.Driver)
	}
	switch v.Graph.Driver {
	case "local", "cognee":
	default:
		return fmt.Errorf("config: unknown graph driver %q", v.Graph.Driver)
	}
	switch v.Agents.Planner {
	case "all", "keyword":
	default:
		return fmt.Errorf("config: unknown agents planner %q", v.Agents.Planner)
	}
	switch v.Telemetry.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("config: unknown telemetry trace exporter %q", v.Telemetry.TraceExporter)
	}
	if v.Indexing.MaxRetries < 1 {
		return fmt.Errorf("config: indexing.max_retries must be at least 1")
	}
	if v.Indexing.BackoffBase <= 0 || v.Indexing.BackoffCap < v.Indexing.BackoffBase {
		return fmt.Errorf("config: indexing backoff requires 0 < backoff_base <= backoff_cap")
	}
	if v.Agents.Timeout <= 0 {
		return fmt.Errorf("config: agents.timeout must be positive")
	}
	if v.Query.MaxLength <= 0 || v.History.PageSize <= 0 {
		return fmt.Errorf("config: query.max_length and history.page_size must be positive")
	}
	return nil
}

func IsDev() bool {
	return get().Env == "dev"
}

func Env() string {
	return get().Env
}
