package config

// EnvPrefix is applied by envconfig on top of the per-field names.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
	AppEnvTest = "test"
)

const (
	EnvAppEnv = "TAXNOVA_APP_ENV"
	EnvDBDSN  = "TAXNOVA_DB_DSN"
	EnvDBHost = "TAXNOVA_DB_HOST"
	EnvDBUser = "TAXNOVA_DB_USER"
	EnvDBName = "TAXNOVA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
