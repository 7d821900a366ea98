package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "COMICFORGE"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (validation
// messages, tests, tooling).
const (
	EnvAppEnv                 = "COMICFORGE_APP_ENV"
	EnvPort                   = "COMICFORGE_APP_PORT"
	EnvDBDSN                  = "COMICFORGE_DB_DSN"
	EnvDBHost                 = "COMICFORGE_DB_HOST"
	EnvDBUser                 = "COMICFORGE_DB_USER"
	EnvDBName                 = "COMICFORGE_DB_NAME"
	EnvRedisURL               = "COMICFORGE_REDIS_URL"
	EnvJWTSecret              = "COMICFORGE_JWT_SECRET"
	EnvJWTIssuer              = "COMICFORGE_JWT_ISSUER"
	EnvJWTExpMins             = "COMICFORGE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "COMICFORGE_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "COMICFORGE_GCP_PROJECT_ID"
	EnvGCSBucket              = "COMICFORGE_GCS_BUCKET_NAME"
	EnvGCSUploadExpiry        = "COMICFORGE_GCS_UPLOAD_URL_EXPIRY"
	EnvGCSDownloadExpiry      = "COMICFORGE_GCS_DOWNLOAD_URL_EXPIRY"
	EnvPubSubGenerationTopic  = "COMICFORGE_PUBSUB_GENERATION_TOPIC"
	EnvPubSubGenerationSub    = "COMICFORGE_PUBSUB_GENERATION_SUBSCRIPTION"
	EnvRazorpayWebhookSecret  = "COMICFORGE_RAZORPAY_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
