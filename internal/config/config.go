package config

import (
    "os"
    "strconv"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// Config holds service settings. A YAML file (CONFIG_FILE) supplies the
// base; environment variables override individual fields.
type Config struct {
    Port        string `yaml:"port"`
    DatabaseURL string `yaml:"databaseUrl"`
    RedisURL    string `yaml:"redisUrl"`

    Solver SolverConfig `yaml:"solver"`

    Webhooks WebhookConfig `yaml:"webhooks"`
}

// SolverConfig carries the service-wide solver defaults. Per-tenant
// overrides stored by the admin API take precedence at request time.
type SolverConfig struct {
    TimeLimitMs int     `yaml:"timeLimitMs"`
    Tolerance   float64 `yaml:"tolerance"`
    Verbose     bool    `yaml:"verbose"`
}

type WebhookConfig struct {
    PollInterval time.Duration `yaml:"pollInterval"`
    BatchSize    int           `yaml:"batchSize"`
    MaxAttempts  int           `yaml:"maxAttempts"`
}

// Load reads the optional YAML file and applies environment overrides.
func Load() (Config, error) {
    cfg := Config{
        Port: "8080",
        Solver: SolverConfig{TimeLimitMs: 60000, Tolerance: 1e-6},
        Webhooks: WebhookConfig{PollInterval: 2 * time.Second, BatchSize: 25, MaxAttempts: 8},
    }
    if path := os.Getenv("CONFIG_FILE"); path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            return Config{}, err
        }
        if err := yaml.Unmarshal(data, &cfg); err != nil {
            return Config{}, err
        }
    }
    if v := os.Getenv("PORT"); v != "" { cfg.Port = v }
    if v := os.Getenv("DATABASE_URL"); v != "" { cfg.DatabaseURL = v }
    if v := os.Getenv("REDIS_URL"); v != "" { cfg.RedisURL = v }
    if v := os.Getenv("SOLVER_TIME_LIMIT_MS"); v != "" {
        if n, err := strconv.Atoi(v); err == nil { cfg.Solver.TimeLimitMs = n }
    }
    if v := os.Getenv("SOLVER_TOLERANCE"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil { cfg.Solver.Tolerance = f }
    }
    if v := os.Getenv("SOLVER_VERBOSE"); v != "" { cfg.Solver.Verbose = v == "1" || v == "true" }
    return cfg, nil
}

// TimeLimit converts the configured milliseconds to a duration.
func (s SolverConfig) TimeLimit() time.Duration {
    return time.Duration(s.TimeLimitMs) * time.Millisecond
}
