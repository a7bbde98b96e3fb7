package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	apiURLVar         = "API_URL"
	apiVersionPathVar = "API_VERSION_PATH"
	imageBaseURLVar   = "IMAGE_BASE_URL"
	requestTimeoutVar = "REQUEST_TIMEOUT"
	rateLimitVar      = "RATE_LIMIT"
	rateBurstVar      = "RATE_BURST"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetImageBaseURL() string
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
}

type API struct {
	v *viper.Viper
}

var _ APIConfig = API{}

// GetAPIBaseURL returns the versioned API root, e.g. "https://portal.example.com/api/v1".
func (a API) GetAPIBaseURL() string {
	base := strings.TrimRight(a.v.GetString(apiURLVar), "/")
	path := a.v.GetString(apiVersionPathVar)
	if path == "" {
		return base
	}
	return base + "/" + strings.Trim(path, "/")
}

func (a API) GetImageBaseURL() string {
	return strings.TrimRight(a.v.GetString(imageBaseURLVar), "/")
}

func (a API) GetRequestTimeout() time.Duration {
	return a.v.GetDuration(requestTimeoutVar)
}

// GetRateLimit is the outbound requests-per-second limit; zero or less means unlimited.
func (a API) GetRateLimit() float64 {
	return a.v.GetFloat64(rateLimitVar)
}

func (a API) GetRateBurst() int {
	if burst := a.v.GetInt(rateBurstVar); burst > 0 {
		return burst
	}
	return 1
}
