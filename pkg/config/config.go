package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Engine      EngineConfig
	Optimizer   OptimizerConfig
	Analyzer    AnalyzerConfig
	Performance PerformanceConfig
	Jobs        JobsConfig
	Export      ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig governs the generation pipeline defaults.
type EngineConfig struct {
	MaxWeeklyHours        int
	HighLoadWarningHours  int
	MaxLoadWeeklyHours    int
	WorkloadCacheTTL      time.Duration
	MorningPeriodBoundary int
}

// OptimizerConfig bounds the improvement passes and global search.
type OptimizerConfig struct {
	GAEnabled          bool
	GAPopulationSize   int
	GAGenerations      int
	GACrossoverRate    float64
	GAMutationRate     float64
	SAEnabled          bool
	SAInitialTemp      float64
	SACoolingRate      float64
	SAMinTemp          float64
	MaxConsecutiveSame int
	MinBreakBetween    int
}

// AnalyzerConfig tunes the heuristic outcome analyzer.
type AnalyzerConfig struct {
	SimilarityThreshold float64
	MaxSimilarResults   int
	HistoryCacheTTL     time.Duration
}

// PerformanceConfig defines budgets and parallelism for a run.
type PerformanceConfig struct {
	ParallelThreshold float64
	MaxChunks         int
	MemoryBudgetBytes int64
	RunSoftTimeout    time.Duration
	QueryBudget       int
}

// ExportConfig governs stored timetable exports.
type ExportConfig struct {
	Dir           string
	SigningSecret string
	ResultTTL     time.Duration
}

// JobsConfig configures the async run queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Engine = EngineConfig{
		MaxWeeklyHours:        v.GetInt("ENGINE_MAX_WEEKLY_HOURS"),
		HighLoadWarningHours:  v.GetInt("ENGINE_HIGH_LOAD_WARNING_HOURS"),
		MaxLoadWeeklyHours:    v.GetInt("ENGINE_MAX_LOAD_WEEKLY_HOURS"),
		WorkloadCacheTTL:      parseDuration(v.GetString("ENGINE_WORKLOAD_CACHE_TTL"), time.Hour),
		MorningPeriodBoundary: v.GetInt("ENGINE_MORNING_PERIOD_BOUNDARY"),
	}

	cfg.Optimizer = OptimizerConfig{
		GAEnabled:          v.GetBool("OPTIMIZER_GA_ENABLED"),
		GAPopulationSize:   v.GetInt("OPTIMIZER_GA_POPULATION"),
		GAGenerations:      v.GetInt("OPTIMIZER_GA_GENERATIONS"),
		GACrossoverRate:    v.GetFloat64("OPTIMIZER_GA_CROSSOVER_RATE"),
		GAMutationRate:     v.GetFloat64("OPTIMIZER_GA_MUTATION_RATE"),
		SAEnabled:          v.GetBool("OPTIMIZER_SA_ENABLED"),
		SAInitialTemp:      v.GetFloat64("OPTIMIZER_SA_INITIAL_TEMP"),
		SACoolingRate:      v.GetFloat64("OPTIMIZER_SA_COOLING_RATE"),
		SAMinTemp:          v.GetFloat64("OPTIMIZER_SA_MIN_TEMP"),
		MaxConsecutiveSame: v.GetInt("OPTIMIZER_MAX_CONSECUTIVE_SAME_SUBJECT"),
		MinBreakBetween:    v.GetInt("OPTIMIZER_MIN_BREAK_BETWEEN_SAME_SUBJECT"),
	}

	cfg.Analyzer = AnalyzerConfig{
		SimilarityThreshold: v.GetFloat64("ANALYZER_SIMILARITY_THRESHOLD"),
		MaxSimilarResults:   v.GetInt("ANALYZER_MAX_SIMILAR_RESULTS"),
		HistoryCacheTTL:     parseDuration(v.GetString("ANALYZER_HISTORY_CACHE_TTL"), 30*time.Minute),
	}

	cfg.Performance = PerformanceConfig{
		ParallelThreshold: v.GetFloat64("PERF_PARALLEL_THRESHOLD"),
		MaxChunks:         v.GetInt("PERF_MAX_CHUNKS"),
		MemoryBudgetBytes: v.GetInt64("PERF_MEMORY_BUDGET_BYTES"),
		RunSoftTimeout:    parseDuration(v.GetString("PERF_RUN_SOFT_TIMEOUT"), 2*time.Minute),
		QueryBudget:       v.GetInt("PERF_QUERY_BUDGET"),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	cfg.Export = ExportConfig{
		Dir:           v.GetString("EXPORT_DIR"),
		SigningSecret: v.GetString("EXPORT_SIGNING_SECRET"),
		ResultTTL:     parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENGINE_MAX_WEEKLY_HOURS", 25)
	v.SetDefault("ENGINE_HIGH_LOAD_WARNING_HOURS", 20)
	v.SetDefault("ENGINE_MAX_LOAD_WEEKLY_HOURS", 40)
	v.SetDefault("ENGINE_WORKLOAD_CACHE_TTL", "1h")
	v.SetDefault("ENGINE_MORNING_PERIOD_BOUNDARY", 4)

	v.SetDefault("OPTIMIZER_GA_ENABLED", false)
	v.SetDefault("OPTIMIZER_GA_POPULATION", 20)
	v.SetDefault("OPTIMIZER_GA_GENERATIONS", 50)
	v.SetDefault("OPTIMIZER_GA_CROSSOVER_RATE", 0.8)
	v.SetDefault("OPTIMIZER_GA_MUTATION_RATE", 0.1)
	v.SetDefault("OPTIMIZER_SA_ENABLED", false)
	v.SetDefault("OPTIMIZER_SA_INITIAL_TEMP", 1000.0)
	v.SetDefault("OPTIMIZER_SA_COOLING_RATE", 0.95)
	v.SetDefault("OPTIMIZER_SA_MIN_TEMP", 0.1)
	v.SetDefault("OPTIMIZER_MAX_CONSECUTIVE_SAME_SUBJECT", 2)
	v.SetDefault("OPTIMIZER_MIN_BREAK_BETWEEN_SAME_SUBJECT", 1)

	v.SetDefault("ANALYZER_SIMILARITY_THRESHOLD", 0.7)
	v.SetDefault("ANALYZER_MAX_SIMILAR_RESULTS", 5)
	v.SetDefault("ANALYZER_HISTORY_CACHE_TTL", "30m")

	v.SetDefault("PERF_PARALLEL_THRESHOLD", 0.7)
	v.SetDefault("PERF_MAX_CHUNKS", 4)
	v.SetDefault("PERF_MEMORY_BUDGET_BYTES", 256*1024*1024)
	v.SetDefault("PERF_RUN_SOFT_TIMEOUT", "2m")
	v.SetDefault("PERF_QUERY_BUDGET", 1000)

	v.SetDefault("JOBS_WORKERS", 1)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNING_SECRET", "")
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
