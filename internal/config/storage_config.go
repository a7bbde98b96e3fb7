package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	storageDriverVar = "SESSION_STORAGE"
	sessionFileVar   = "SESSION_FILE"
	storageKeyVar    = "SESSION_STORAGE_KEY"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
	redisPrefixVar   = "REDIS_PREFIX"
)

// Session storage drivers.
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetSessionFile() string
	GetStorageKey() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageDriver() string {
	return s.v.GetString(storageDriverVar)
}

// GetSessionFile returns the session file path, defaulting to
// <user config dir>/portal/session.json.
func (s Storage) GetSessionFile() string {
	if path := s.v.GetString(sessionFileVar); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "portal", "session.json")
}

// GetStorageKey returns the passphrase used to encrypt the session file.
// Empty disables encryption.
func (s Storage) GetStorageKey() string {
	return s.v.GetString(storageKeyVar)
}

func (s Storage) GetRedisAddr() string {
	return s.v.GetString(redisAddrVar)
}

func (s Storage) GetRedisPassword() string {
	return s.v.GetString(redisPasswordVar)
}

func (s Storage) GetRedisDB() int {
	return s.v.GetInt(redisDBVar)
}

func (s Storage) GetRedisPrefix() string {
	return s.v.GetString(redisPrefixVar)
}
