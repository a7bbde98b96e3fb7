package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	maxRenewalAttemptsVar    = "MAX_RENEWAL_ATTEMPTS"
	renewalBackoffVar        = "RENEWAL_BACKOFF"
	maxRenewalBackoffVar     = "MAX_RENEWAL_BACKOFF"
	defaultAccessTokenTTLVar = "DEFAULT_ACCESS_TOKEN_TTL"
)

type SessionConfig interface {
	GetMaxRenewalAttempts() int
	GetRenewalBackoff() time.Duration
	GetMaxRenewalBackoff() time.Duration
	GetDefaultAccessTokenTTL() time.Duration
}

type Session struct {
	v *viper.Viper
}

var _ SessionConfig = Session{}

// GetMaxRenewalAttempts is the number of renewals a single request may trigger
// before the session is considered expired.
func (s Session) GetMaxRenewalAttempts() int {
	if n := s.v.GetInt(maxRenewalAttemptsVar); n > 0 {
		return n
	}
	return 3
}

func (s Session) GetRenewalBackoff() time.Duration {
	return s.v.GetDuration(renewalBackoffVar)
}

func (s Session) GetMaxRenewalBackoff() time.Duration {
	return s.v.GetDuration(maxRenewalBackoffVar)
}

// GetDefaultAccessTokenTTL is used when a renewed access token comes back
// without an expiry and carries no exp claim.
func (s Session) GetDefaultAccessTokenTTL() time.Duration {
	return s.v.GetDuration(defaultAccessTokenTTLVar)
}
