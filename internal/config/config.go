package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
)

// DefaultWorkflows maps workflow names to their workflow files
var DefaultWorkflows = map[string]string{
	"aiParityScan":               "ai-parity-scan.yml",
	"aiParityScanMerge":          "ai-parity-scan-merge.yml",
	"aiParityIssueCreation":      "ai-parity-issue-creation.yml",
	"aiParityMaintenanceMetrics": "ai-parity-maintenance-metrics.yml",
}

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken string
	GitHubRepo  string // owner/name

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint  string
	SnapshotPath string
	SnapshotDir  string
	SnapshotURLs []string

	// Pipeline
	Languages          []string
	FixLabel           string
	AnalysisLabel      string
	AgentLogin         string
	StaleDays          int
	WorkflowWindowDays int
	Workflows          map[string]string

	Targets domain.Targets
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile loads the configuration from the given env file, then the environment
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	if err := godotenv.Load(path); err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	defaults := domain.DefaultTargets()

	workflows, err := parseWorkflows(getEnv("WORKFLOWS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		GitHubToken:   getEnv("GITHUB_TOKEN", ""),
		GitHubRepo:    getEnv("GITHUB_REPO", ""),
		StorageType:   getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "./parity-metrics.db"),
		PostgresURL:   getEnv("POSTGRES_URL", ""),
		APIPort:       getEnv("API_PORT", "8080"),
		APIHost:       getEnv("API_HOST", "localhost"),
		APIEndpoint:   getEnv("API_ENDPOINT", "http://localhost:8080"),
		SnapshotPath:  getEnv("SNAPSHOT_PATH", ""),
		SnapshotDir:   getEnv("SNAPSHOT_DIR", ""),
		SnapshotURLs:  getURLs("SNAPSHOT_URLS"),
		Languages:     getList("LANGUAGES", domain.DefaultLanguages),
		FixLabel:      getEnv("FIX_LABEL", "parity-fix"),
		AnalysisLabel: getEnv("ANALYSIS_LABEL", "parity-analysis"),
		AgentLogin:    getEnv("AGENT_LOGIN", "Copilot"),
		Workflows:     workflows,
	}

	if cfg.StaleDays, err = getInt("STALE_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.WorkflowWindowDays, err = getInt("WORKFLOW_WINDOW_DAYS", 7); err != nil {
		return nil, err
	}

	cfg.Targets = defaults
	if cfg.Targets.AgentSuccessRate, err = getFloat("TARGET_AGENT_SUCCESS", defaults.AgentSuccessRate); err != nil {
		return nil, err
	}
	if cfg.Targets.FixPrMergeRate, err = getFloat("TARGET_MERGE_RATE", defaults.FixPrMergeRate); err != nil {
		return nil, err
	}
	cfg.Targets.AnalysisPrMergeRate = cfg.Targets.FixPrMergeRate
	if cfg.Targets.MaxWorkflowFailureRate, err = getFloat("TARGET_MAX_WORKFLOW_FAILURE", defaults.MaxWorkflowFailureRate); err != nil {
		return nil, err
	}
	if cfg.Targets.DetectionAccuracy, err = getFloat("TARGET_DETECTION_ACCURACY", defaults.DetectionAccuracy); err != nil {
		return nil, err
	}
	if cfg.Targets.QualityScore, err = getScore("TARGET_QUALITY_SCORE", defaults.QualityScore); err != nil {
		return nil, err
	}
	if cfg.Targets.DeveloperSatisfaction, err = getScore("TARGET_DEV_SATISFACTION", defaults.DeveloperSatisfaction); err != nil {
		return nil, err
	}
	if cfg.Targets.ContextUtilization, err = getFloat("TARGET_CONTEXT_UTILIZATION", defaults.ContextUtilization); err != nil {
		return nil, err
	}
	if cfg.Targets.MaxFalsePositiveRate, err = getFloat("TARGET_MAX_FALSE_POSITIVE", defaults.MaxFalsePositiveRate); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	seen := make(map[string]struct{})
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func getURLs(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, &ConfigError{Field: key, Message: "must be a positive integer"}
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f > 100 {
		return 0, &ConfigError{Field: key, Message: "must be a percentage between 0 and 100"}
	}
	return f, nil
}

func getScore(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f > 5 {
		return 0, &ConfigError{Field: key, Message: "must be a score between 0 and 5"}
	}
	return f, nil
}

// parseWorkflows parses "name=file.yml,name2=file2.yml"
func parseWorkflows(value string) (map[string]string, error) {
	out := make(map[string]string)
	if value == "" {
		for name, file := range DefaultWorkflows {
			out[name] = file
		}
		return out, nil
	}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, file, ok := strings.Cut(pair, "=")
		name, file = strings.TrimSpace(name), strings.TrimSpace(file)
		if !ok || name == "" || file == "" {
			return nil, &ConfigError{Field: "WORKFLOWS", Message: "entries must look like name=file.yml"}
		}
		out[name] = file
	}
	return out, nil
}

// WorkflowNames returns the configured workflow names, sorted
func (c *Config) WorkflowNames() []string {
	names := make([]string, 0, len(c.Workflows))
	for name := range c.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate validates the storage configuration
func (c *Config) Validate() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ValidateCollector validates the settings needed to collect from GitHub
func (c *Config) ValidateCollector() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if _, _, err := c.Repository(); err != nil {
		return err
	}
	if c.FixLabel == "" {
		return &ConfigError{Field: "FIX_LABEL", Message: "fix label is required"}
	}
	return nil
}

// Repository splits GitHubRepo into owner and name
func (c *Config) Repository() (owner, name string, err error) {
	owner, name, ok := strings.Cut(c.GitHubRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", &ConfigError{Field: "GITHUB_REPO", Message: "must look like owner/name"}
	}
	return owner, name, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
