package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Plans         PlansConfig
	Razorpay      RazorpayConfig
	OpenAI        OpenAIConfig
	ImageGen      ImageGenConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Worker        WorkerConfig
	PDF           PDFConfig
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
	Env          string `envconfig:"COMICFORGE_APP_ENV" required:"true"`
	Port         string `envconfig:"COMICFORGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COMICFORGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COMICFORGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMICFORGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMICFORGE_DB_DSN"`
	Driver string `envconfig:"COMICFORGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMICFORGE_DB_HOST"`
	LegacyPort     int    `envconfig:"COMICFORGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMICFORGE_DB_USER"`
	LegacyPassword string `envconfig:"COMICFORGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMICFORGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMICFORGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMICFORGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMICFORGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMICFORGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMICFORGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMICFORGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMICFORGE_REDIS_ADDR"`
	Password     string        `envconfig:"COMICFORGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMICFORGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMICFORGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMICFORGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMICFORGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMICFORGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMICFORGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"COMICFORGE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"COMICFORGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"COMICFORGE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"COMICFORGE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COMICFORGE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COMICFORGE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COMICFORGE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COMICFORGE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COMICFORGE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"COMICFORGE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COMICFORGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COMICFORGE_AUTO_MIGRATE" default:"false"`
}

// PlansConfig carries the configurable parts of the plan policy table plus
// backend-enforced pricing in integer minor units. Read through the plan
// policy service, never directly by handlers.
type PlansConfig struct {
	CreativeMaxPages     int   `envconfig:"COMICFORGE_PLAN_CREATIVE_MAX_PAGES" default:"10"`
	ProMonthlyQuota      int   `envconfig:"COMICFORGE_PLAN_PRO_MONTHLY_QUOTA" default:"50"`
	CreativeMonthlyQuota int   `envconfig:"COMICFORGE_PLAN_CREATIVE_MONTHLY_QUOTA" default:"200"`
	ProPriceMinor        int64 `envconfig:"COMICFORGE_PLAN_PRO_PRICE_MINOR" default:"49900"`
	CreativePriceMinor   int64 `envconfig:"COMICFORGE_PLAN_CREATIVE_PRICE_MINOR" default:"149900"`
}

type RazorpayConfig struct {
	KeyID         string        `envconfig:"COMICFORGE_RAZORPAY_KEY_ID"`
	KeySecret     string        `envconfig:"COMICFORGE_RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"COMICFORGE_RAZORPAY_WEBHOOK_SECRET" required:"true"`
	BaseURL       string        `envconfig:"COMICFORGE_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout       time.Duration `envconfig:"COMICFORGE_RAZORPAY_TIMEOUT" default:"15s"`
	MaxRetries    int           `envconfig:"COMICFORGE_RAZORPAY_MAX_RETRIES" default:"3"`
	Currency      string        `envconfig:"COMICFORGE_RAZORPAY_CURRENCY" default:"INR"`
}

type OpenAIConfig struct {
	APIKey        string        `envconfig:"COMICFORGE_OPENAI_API_KEY"`
	Model         string        `envconfig:"COMICFORGE_OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout       time.Duration `envconfig:"COMICFORGE_OPENAI_TIMEOUT" default:"60s"`
	MaxRetries    int           `envconfig:"COMICFORGE_OPENAI_MAX_RETRIES" default:"3"`
	SchemaRetries int           `envconfig:"COMICFORGE_OPENAI_SCHEMA_RETRIES" default:"2"`
}

type ImageGenConfig struct {
	BaseURL     string        `envconfig:"COMICFORGE_IMAGEGEN_BASE_URL"`
	APIKey      string        `envconfig:"COMICFORGE_IMAGEGEN_API_KEY"`
	Timeout     time.Duration `envconfig:"COMICFORGE_IMAGEGEN_TIMEOUT" default:"60s"`
	MaxRetries  int           `envconfig:"COMICFORGE_IMAGEGEN_MAX_RETRIES" default:"3"`
	PanelWidth  int           `envconfig:"COMICFORGE_IMAGEGEN_PANEL_WIDTH" default:"512"`
	PanelHeight int           `envconfig:"COMICFORGE_IMAGEGEN_PANEL_HEIGHT" default:"512"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COMICFORGE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"COMICFORGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COMICFORGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"COMICFORGE_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"COMICFORGE_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"COMICFORGE_GCS_DOWNLOAD_URL_EXPIRY" default:"24h"`
}

type PubSubConfig struct {
	GenerationTopic        string `envconfig:"COMICFORGE_PUBSUB_GENERATION_TOPIC" required:"true"`
	GenerationSubscription string `envconfig:"COMICFORGE_PUBSUB_GENERATION_SUBSCRIPTION" required:"true"`
}

type WorkerConfig struct {
	MaxAttempts    int `envconfig:"COMICFORGE_WORKER_MAX_ATTEMPTS" default:"3"`
	MaxOutstanding int `envconfig:"COMICFORGE_WORKER_MAX_OUTSTANDING" default:"4"`
}

type PDFConfig struct {
	StandardDPI int `envconfig:"COMICFORGE_PDF_STANDARD_DPI" default:"150"`
	HighDPI     int `envconfig:"COMICFORGE_PDF_HIGH_DPI" default:"300"`
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
