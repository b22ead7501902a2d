package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix is prepended to every environment variable name read here.
const envPrefix = "WADAI_"

// parseEnv overlays Config with WADAI_* environment variables. A .env file in
// the working directory is loaded first when present; variables already set
// in the process environment win over the file.
//
// Durations use time.ParseDuration syntax ("15m", "168h").
// Invalid values panic, like malformed JSON or flags do.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("GRPC_ADDR", &config.GRPCAddr)
	envString("STORAGE", &config.Storage)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("SECRET_KEY", &config.SecretKey)
	envString("ISSUER", &config.Issuer)
	envDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	envDuration("VERIFICATION_TOKEN_TTL", &config.VerificationTokenValidityDuration)
	envDuration("CLEANUP_INTERVAL", &config.CleanupInterval)
	envString("REDIS_ADDR", &config.RedisAddr)
	envInt("LOGIN_MAX_ATTEMPTS", &config.LoginMaxAttempts)
	envDuration("LOGIN_COOLDOWN", &config.LoginCooldown)
	envString("PUBLIC_BASE_URL", &config.PublicBaseURL)
	envString("LOG_LEVEL", &config.LogLevel)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt(name string, dst *int) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}
