package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	Env                   string
	LogLevel              string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	CriticalStockDefault  int
	AutoMigrate           bool
}

// Load reads configuration from the environment, optionally backed by
// .env and config.env files in the working directory. Environment
// variables win over both files.
func Load() Config {
	v := viper.New()
	for _, file := range []string{".env", "config.env"} {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		_ = v.MergeInConfig()
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 60)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("CRITICAL_STOCK_DEFAULT", 10)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	return Config{
		Port:                  v.GetString("PORT"),
		Env:                   strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		LogLevel:              v.GetString("LOG_LEVEL"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		ReportCacheTTLSeconds: positiveInt(v, "REPORT_CACHE_TTL_SECONDS", 60),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480),
		CriticalStockDefault:  nonNegativeInt(v, "CRITICAL_STOCK_DEFAULT", 10),
		AutoMigrate:           v.GetBool("DB_AUTO_MIGRATE"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func positiveInt(v *viper.Viper, key string, fallback int) int {
	n := v.GetInt(key)
	if n < 1 {
		return fallback
	}
	return n
}

func nonNegativeInt(v *viper.Viper, key string, fallback int) int {
	n := v.GetInt(key)
	if n < 0 {
		return fallback
	}
	return n
}
