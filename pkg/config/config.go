package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Features FeatureFlagsConfig
	GCP      GCPConfig
	Sheets   SheetsConfig
	PubSub   PubSubConfig
	Intake   IntakeConfig
	Dispatch DispatchConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RACEDAY_APP_ENV" required:"true"`
	Port         string `envconfig:"RACEDAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RACEDAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RACEDAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RACEDAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RACEDAY_DB_DSN"`
	Driver string `envconfig:"RACEDAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RACEDAY_DB_HOST"`
	LegacyPort     int    `envconfig:"RACEDAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RACEDAY_DB_USER"`
	LegacyPassword string `envconfig:"RACEDAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"RACEDAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"RACEDAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RACEDAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RACEDAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RACEDAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RACEDAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RACEDAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RACEDAY_REDIS_ADDR"`
	Password     string        `envconfig:"RACEDAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"RACEDAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RACEDAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RACEDAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RACEDAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RACEDAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RACEDAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RACEDAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RACEDAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RACEDAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RACEDAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RACEDAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type SheetsConfig struct {
	ReadTimeout time.Duration `envconfig:"RACEDAY_SHEETS_READ_TIMEOUT" default:"30s"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"RACEDAY_PUBSUB_NOTIFICATION_TOPIC" default:"raceday-notification-events"`
}

type IntakeConfig struct {
	TxRefMaxAttempts int           `envconfig:"RACEDAY_INTAKE_TXREF_MAX_ATTEMPTS" default:"10"`
	SourceTimeout    time.Duration `envconfig:"RACEDAY_INTAKE_SOURCE_TIMEOUT" default:"2m"`
}

type DispatchConfig struct {
	SweepBatchSize       int           `envconfig:"RACEDAY_DISPATCH_SWEEP_BATCH_SIZE" default:"50"`
	MaxRetries           int           `envconfig:"RACEDAY_DISPATCH_MAX_RETRIES" default:"3"`
	FailedRetryBatch     int           `envconfig:"RACEDAY_DISPATCH_FAILED_RETRY_BATCH" default:"100"`
	StuckProcessingAfter time.Duration `envconfig:"RACEDAY_DISPATCH_STUCK_PROCESSING_AFTER" default:"15m"`
	SentRetentionDays    int           `envconfig:"RACEDAY_DISPATCH_SENT_RETENTION_DAYS" default:"90"`
	PublishTimeout       time.Duration `envconfig:"RACEDAY_DISPATCH_PUBLISH_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	IntakeSchedule      string        `envconfig:"RACEDAY_CRON_INTAKE_SCHEDULE" default:"*/1 * * * *"`
	SweepSchedule       string        `envconfig:"RACEDAY_CRON_SWEEP_SCHEDULE" default:"*/2 * * * *"`
	PromotionSchedule   string        `envconfig:"RACEDAY_CRON_PROMOTION_SCHEDULE" default:"*/5 * * * *"`
	FailedRetrySchedule string        `envconfig:"RACEDAY_CRON_FAILED_RETRY_SCHEDULE" default:"0 */6 * * *"`
	PurgeSchedule       string        `envconfig:"RACEDAY_CRON_PURGE_SCHEDULE" default:"30 3 * * *"`
	ReconcileSchedule   string        `envconfig:"RACEDAY_CRON_RECONCILE_SCHEDULE" default:"0 * * * *"`
	LockTTL             time.Duration `envconfig:"RACEDAY_CRON_LOCK_TTL" default:"30m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
