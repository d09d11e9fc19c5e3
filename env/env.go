package env

// Environment variable names
const (
	DATABASE_DSN    = "DATABASE_DSN"
	CONFIG_PATH     = "CONFIG_PATH"
	CHAIN_ID        = "CHAIN_ID"
	RPC_URL_PATH    = "RPC_URL_PATH"
	API_BIND_ADDR   = "API_BIND_ADDR"
	API_PORT        = "API_PORT"
	LOG_LEVEL       = "LOG_LEVEL"
	LOG_DEVELOPMENT = "LOG_DEVELOPMENT"
	AUTO_MIGRATE    = "AUTO_MIGRATE"

	// payout executor key, either plain hex or an encrypted key file
	PAYOUT_KEY      = "PAYOUT_KEY"
	PAYOUT_KEY_FILE = "PAYOUT_KEY_FILE"
	KEY_FILE_SECRET = "KEY_FILE_SECRET"
	PAYOUT_DRY_RUN  = "PAYOUT_DRY_RUN"
	REWARDS_ENABLED = "REWARDS_ENABLED"

	// bearer token verification: HS256 secret or RS256 keys from a JWKS url
	JWT_SECRET   = "JWT_SECRET"
	JWKS_URL     = "JWKS_URL"
	JWT_AUDIENCE = "JWT_AUDIENCE"

	GENAI_API_KEY    = "GENAI_API_KEY"
	GENAI_MODEL      = "GENAI_MODEL"
	AI_CACHE_PATH    = "AI_CACHE_PATH"
	AI_CACHE_TTL_MIN = "AI_CACHE_TTL_MIN"

	PINNING_URL   = "PINNING_URL"
	PINNING_TOKEN = "PINNING_TOKEN"
)

// Settings property keys stored in reward_settings
const (
	SETTING_BATCH_TS       = "batch_timestamp"
	SETTING_BATCH_FINISHED = "batch_finished"
	SETTING_PAYOUT_ADDR    = "payout_addr"
	SETTING_LOOKBACK_DAYS  = "payment_max_lookback_days"
)
