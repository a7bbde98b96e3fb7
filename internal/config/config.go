package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
}

// New loads an optional .env file and returns a Config resolved from the
// environment, falling back to defaults.
func New() Config {
	_ = godotenv.Load()
	return FromViper(newViper())
}

// FromViper builds a Config over an existing viper instance. Keys are the
// environment variable names (e.g. "API_URL").
func FromViper(v *viper.Viper) Config {
	return mainConfig{
		EnvVars: EnvVars{v: v},
		API:     API{v: v},
		Session: Session{v: v},
		Storage: Storage{v: v},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(appNameVar, "Portal Lentera")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")

	v.SetDefault(apiURLVar, "http://localhost:8000")
	v.SetDefault(apiVersionPathVar, "/api/v1")
	v.SetDefault(imageBaseURLVar, "")
	v.SetDefault(requestTimeoutVar, "15s")
	v.SetDefault(rateLimitVar, 0)
	v.SetDefault(rateBurstVar, 1)

	v.SetDefault(maxRenewalAttemptsVar, 3)
	v.SetDefault(renewalBackoffVar, "200ms")
	v.SetDefault(maxRenewalBackoffVar, "2s")
	v.SetDefault(defaultAccessTokenTTLVar, "15m")

	v.SetDefault(storageDriverVar, "file")
	v.SetDefault(sessionFileVar, "")
	v.SetDefault(storageKeyVar, "")
	v.SetDefault(redisAddrVar, "localhost:6379")
	v.SetDefault(redisPasswordVar, "")
	v.SetDefault(redisDBVar, 0)
	v.SetDefault(redisPrefixVar, "portal:session:")
}
