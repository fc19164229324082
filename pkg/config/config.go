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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Chain    ChainConfig
	Staging  StagingConfig
	Exports  ExportsConfig
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

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ChainConfig wires the ledger RPC endpoint, the feedback contract and the
// signing policy. Gas ceilings are explicit per method class; the adapter
// never estimates gas.
type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	// PrivateKeys are hex-encoded keys imported into the adapter wallet at
	// startup. Addresses without an imported key may still send if the node
	// holds them unlocked.
	PrivateKeys  []string
	AdminAddress string
	// SponsorFeedback permits admin-sponsored feedback sends when the
	// student's own address cannot sign. Off by default: sponsorship changes
	// who pays gas and must be an explicit operator choice.
	SponsorFeedback bool

	RegisterGasLimit uint64
	AssignGasLimit   uint64
	FeedbackGasLimit uint64

	TxTimeout    time.Duration
	NonceRetries int
	CacheTTL     time.Duration
}

// StagingConfig controls the off-chain feedback staging store.
type StagingConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
}

// ExportsConfig toggles feedback report exports.
type ExportsConfig struct {
	Enabled bool
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

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Chain = ChainConfig{
		RPCURL:           v.GetString("CHAIN_RPC_URL"),
		ContractAddress:  v.GetString("CHAIN_CONTRACT_ADDRESS"),
		ChainID:          v.GetInt64("CHAIN_ID"),
		PrivateKeys:      splitAndTrim(v.GetString("CHAIN_PRIVATE_KEYS")),
		AdminAddress:     v.GetString("CHAIN_ADMIN_ADDRESS"),
		SponsorFeedback:  v.GetBool("CHAIN_SPONSOR_FEEDBACK"),
		RegisterGasLimit: v.GetUint64("CHAIN_GAS_LIMIT_REGISTER"),
		AssignGasLimit:   v.GetUint64("CHAIN_GAS_LIMIT_ASSIGN"),
		FeedbackGasLimit: v.GetUint64("CHAIN_GAS_LIMIT_FEEDBACK"),
		TxTimeout:        parseDuration(v.GetString("CHAIN_TX_TIMEOUT"), 90*time.Second),
		NonceRetries:     v.GetInt("CHAIN_NONCE_RETRIES"),
		CacheTTL:         parseDuration(v.GetString("CHAIN_CACHE_TTL"), 30*time.Second),
	}

	cfg.Staging = StagingConfig{
		TTL:           parseDuration(v.GetString("STAGING_TTL"), 24*time.Hour),
		PurgeInterval: parseDuration(v.GetString("STAGING_PURGE_INTERVAL"), time.Hour),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
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
	v.SetDefault("DB_NAME", "campus_feedback")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHAIN_RPC_URL", "http://127.0.0.1:7545")
	v.SetDefault("CHAIN_CONTRACT_ADDRESS", "")
	v.SetDefault("CHAIN_ID", 1337)
	v.SetDefault("CHAIN_PRIVATE_KEYS", "")
	v.SetDefault("CHAIN_ADMIN_ADDRESS", "")
	v.SetDefault("CHAIN_SPONSOR_FEEDBACK", false)
	v.SetDefault("CHAIN_GAS_LIMIT_REGISTER", 300000)
	v.SetDefault("CHAIN_GAS_LIMIT_ASSIGN", 200000)
	v.SetDefault("CHAIN_GAS_LIMIT_FEEDBACK", 500000)
	v.SetDefault("CHAIN_TX_TIMEOUT", "90s")
	v.SetDefault("CHAIN_NONCE_RETRIES", 2)
	v.SetDefault("CHAIN_CACHE_TTL", "30s")

	v.SetDefault("STAGING_TTL", "24h")
	v.SetDefault("STAGING_PURGE_INTERVAL", "1h")

	v.SetDefault("ENABLE_EXPORTS", true)
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
