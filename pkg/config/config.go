package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Audit        AuditConfig
	Ledger       LedgerConfig
	Evidence     EvidenceConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"TAXNOVA_APP_ENV" required:"true"`
	Port         string `envconfig:"TAXNOVA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TAXNOVA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TAXNOVA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TAXNOVA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TAXNOVA_DB_DSN"`
	Driver string `envconfig:"TAXNOVA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TAXNOVA_DB_HOST"`
	LegacyPort     int    `envconfig:"TAXNOVA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TAXNOVA_DB_USER"`
	LegacyPassword string `envconfig:"TAXNOVA_DB_PASSWORD"`
	LegacyName     string `envconfig:"TAXNOVA_DB_NAME"`
	LegacySSLMode  string `envconfig:"TAXNOVA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TAXNOVA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TAXNOVA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TAXNOVA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TAXNOVA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TAXNOVA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TAXNOVA_REDIS_ADDR"`
	Password     string        `envconfig:"TAXNOVA_REDIS_PASSWORD"`
	DB           int           `envconfig:"TAXNOVA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TAXNOVA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TAXNOVA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TAXNOVA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TAXNOVA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TAXNOVA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TAXNOVA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TAXNOVA_AUTO_MIGRATE" default:"false"`
}

// AuditConfig carries the statistical policy knobs for audit runs. They
// are snapshotted into AuditRun.parameters so a run stays reproducible
// after the configuration changes.
type AuditConfig struct {
	AnalysisTimeout      time.Duration `envconfig:"TAXNOVA_AUDIT_ANALYSIS_TIMEOUT" default:"5m"`
	ScheduleInterval     time.Duration `envconfig:"TAXNOVA_AUDIT_SCHEDULE_INTERVAL" default:"24h"`
	SchedulePeriod       time.Duration `envconfig:"TAXNOVA_AUDIT_SCHEDULE_PERIOD" default:"720h"`
	BenfordMinSampleSize int           `envconfig:"TAXNOVA_AUDIT_BENFORD_MIN_SAMPLE" default:"100"`
	BenfordMinMagnitude  string        `envconfig:"TAXNOVA_AUDIT_BENFORD_MIN_MAGNITUDE" default:"10"`
	ZScoreThreshold      float64       `envconfig:"TAXNOVA_AUDIT_ZSCORE_THRESHOLD" default:"3.0"`
	ZScoreMinGroupSize   int           `envconfig:"TAXNOVA_AUDIT_ZSCORE_MIN_GROUP" default:"5"`
	QuantityTolerance    string        `envconfig:"TAXNOVA_AUDIT_MATCH_QTY_TOLERANCE" default:"0.02"`
	PriceTolerance       string        `envconfig:"TAXNOVA_AUDIT_MATCH_PRICE_TOLERANCE" default:"0.01"`
	AmountTolerance      string        `envconfig:"TAXNOVA_AUDIT_MATCH_AMOUNT_TOLERANCE" default:"100.00"`
	PriceFraudCeiling    string        `envconfig:"TAXNOVA_AUDIT_MATCH_PRICE_FRAUD_CEILING" default:"0.50"`
	QuantityFraudCeiling string        `envconfig:"TAXNOVA_AUDIT_MATCH_QTY_FRAUD_CEILING" default:"0.10"`
}

type LedgerConfig struct {
	AppendMaxAttempts int           `envconfig:"TAXNOVA_LEDGER_APPEND_MAX_ATTEMPTS" default:"5"`
	AppendBaseBackoff time.Duration `envconfig:"TAXNOVA_LEDGER_APPEND_BASE_BACKOFF" default:"25ms"`
	VerifyBatchSize   int           `envconfig:"TAXNOVA_LEDGER_VERIFY_BATCH_SIZE" default:"500"`
}

type EvidenceConfig struct {
	BucketName string        `envconfig:"TAXNOVA_EVIDENCE_BUCKET_NAME"`
	Timeout    time.Duration `envconfig:"TAXNOVA_EVIDENCE_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TAXNOVA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TAXNOVA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TAXNOVA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuditTopic        string `envconfig:"TAXNOVA_PUBSUB_AUDIT_TOPIC" default:"tn-audit-events"`
	AuditSubscription string `envconfig:"TAXNOVA_PUBSUB_AUDIT_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset       string `envconfig:"TAXNOVA_BIGQUERY_DATASET" default:"taxnova"`
	FindingsTable string `envconfig:"TAXNOVA_BIGQUERY_FINDINGS_TABLE" default:"audit_findings"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TAXNOVA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TAXNOVA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TAXNOVA_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
