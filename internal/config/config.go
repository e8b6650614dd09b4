package config

import (
	"time"

	"github.com/khchop/kickscore/internal/platform/envutil"
)

type Config struct {
	Environment string
	Port        string

	CatalogPath string

	// Worker pools, one per job type.
	AnalysisConcurrency    int
	PredictionsConcurrency int
	LiveMonitorConcurrency int
	SettlementConcurrency  int
	BackfillConcurrency    int

	JobMaxAttempts  int
	JobRetryDelay   time.Duration
	JobStaleRunning time.Duration

	// Provider call deadlines by timeout class.
	ProviderTimeoutStandard  time.Duration
	ProviderTimeoutReasoning time.Duration
	// Bounded parallel provider calls per predictions job.
	ProviderCallConcurrency int

	ModelDisableAfter  int
	ModelProbeCooldown time.Duration

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
	BreakerCacheTTL         time.Duration

	BudgetDefaultDailyLimit int

	SchedulerInterval time.Duration
	ScheduleHorizon   time.Duration
	LiveMonitorPeriod time.Duration

	FallbackMaxDepth int

	AdminToken       string
	ServiceJWTSecret string
}

func Load() *Config {
	return &Config{
		Environment: envutil.String("ENVIRONMENT", "development"),
		Port:        envutil.String("PORT", "8080"),

		CatalogPath: envutil.String("MODEL_CATALOG_PATH", "configs/models.yaml"),

		AnalysisConcurrency:    envutil.Int("ANALYSIS_CONCURRENCY", 2),
		PredictionsConcurrency: envutil.Int("PREDICTIONS_CONCURRENCY", 3),
		LiveMonitorConcurrency: envutil.Int("LIVE_MONITOR_CONCURRENCY", 2),
		SettlementConcurrency:  envutil.Int("SETTLEMENT_CONCURRENCY", 2),
		BackfillConcurrency:    envutil.Int("BACKFILL_CONCURRENCY", 1),

		JobMaxAttempts:  envutil.Int("JOB_MAX_ATTEMPTS", 5),
		JobRetryDelay:   envutil.Duration("JOB_RETRY_DELAY", 30*time.Second),
		JobStaleRunning: envutil.Duration("JOB_STALE_RUNNING", 30*time.Minute),

		ProviderTimeoutStandard:  envutil.Duration("PROVIDER_TIMEOUT_STANDARD", 60*time.Second),
		ProviderTimeoutReasoning: envutil.Duration("PROVIDER_TIMEOUT_REASONING", 300*time.Second),
		ProviderCallConcurrency:  envutil.Int("PROVIDER_CALL_CONCURRENCY", 5),

		ModelDisableAfter:  envutil.Int("MODEL_DISABLE_AFTER", 3),
		ModelProbeCooldown: envutil.Duration("MODEL_PROBE_COOLDOWN", 6*time.Hour),

		BreakerFailureThreshold: envutil.Int("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:      envutil.Duration("BREAKER_OPEN_TIMEOUT", 60*time.Second),
		BreakerCacheTTL:         envutil.Duration("BREAKER_CACHE_TTL", 10*time.Minute),

		BudgetDefaultDailyLimit: envutil.Int("BUDGET_DEFAULT_DAILY_LIMIT", 500),

		SchedulerInterval: envutil.Duration("SCHEDULER_INTERVAL", 1*time.Minute),
		ScheduleHorizon:   envutil.Duration("SCHEDULE_HORIZON", 48*time.Hour),
		LiveMonitorPeriod: envutil.Duration("LIVE_MONITOR_PERIOD", 2*time.Minute),

		FallbackMaxDepth: envutil.Int("FALLBACK_MAX_DEPTH", 1),

		AdminToken:       envutil.String("ADMIN_TOKEN_HASH", ""),
		ServiceJWTSecret: envutil.String("SERVICE_JWT_SECRET", ""),
	}
}
