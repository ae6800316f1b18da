package config

const (
	EnvPrefix = "raceday"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "RACEDAY_APP_ENV"
	EnvPort         = "RACEDAY_APP_PORT"
	EnvDBDSN        = "RACEDAY_DB_DSN"
	EnvDBHost       = "RACEDAY_DB_HOST"
	EnvDBUser       = "RACEDAY_DB_USER"
	EnvDBName       = "RACEDAY_DB_NAME"
	EnvRedisURL     = "RACEDAY_REDIS_URL"
	EnvGCPProjectID = "RACEDAY_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
