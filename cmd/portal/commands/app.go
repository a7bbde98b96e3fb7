package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/auth"
	"github.com/jrsteele09/go-portal-client/gateway"
	"github.com/jrsteele09/go-portal-client/internal/config"
	"github.com/jrsteele09/go-portal-client/internal/metrics"
	"github.com/jrsteele09/go-portal-client/meetings"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/jrsteele09/go-portal-client/session/filestore"
	"github.com/jrsteele09/go-portal-client/session/redisstore"
	"github.com/jrsteele09/go-portal-client/token/refresh"
	"github.com/jrsteele09/go-portal-client/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app holds the wired client for the lifetime of one command.
type app struct {
	cfg      config.Config
	store    *session.Store
	gateway  *gateway.Gateway
	auth     *auth.Service
	users    *users.Service
	meetings *meetings.Service
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg config.Config, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	storage, err := a.newStorage(cfg)
	if err != nil {
		return nil, err
	}

	navigator := session.NavigatorFunc(func(reason session.Reason) {
		fmt.Fprintln(stderr, reason.Message())
	})
	a.store, err = session.NewStore(ctx, storage, session.WithNavigator(navigator))
	if err != nil {
		a.close()
		return nil, err
	}

	client, err := api.NewClient(cfg.GetAPIBaseURL(),
		api.WithTimeout(cfg.GetRequestTimeout()),
		api.WithRateLimit(cfg.GetRateLimit(), cfg.GetRateBurst()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.gateway, err = gateway.New(client, a.store, refresh.NewRenewer(client, cfg), cfg,
		gateway.WithMetrics(metrics.NewGateway(a.registry)),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	if a.auth, err = auth.NewService(a.gateway, a.store); err != nil {
		a.close()
		return nil, err
	}
	a.users = users.NewService(a.gateway)
	if a.meetings, err = meetings.NewService(a.gateway, a.store, cfg.GetImageBaseURL()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) newStorage(cfg config.StorageConfig) (session.Storage, error) {
	switch driver := cfg.GetStorageDriver(); driver {
	case config.StorageFile, "":
		log.Debug().Str("path", cfg.GetSessionFile()).Msg("Using file session storage")
		return filestore.New(cfg.GetSessionFile(), cfg.GetStorageKey())

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		a.closers = append(a.closers, client.Close)
		log.Debug().Str("addr", cfg.GetRedisAddr()).Msg("Using redis session storage")
		return redisstore.New(client, cfg.GetRedisPrefix())

	default:
		return nil, errors.Errorf("unknown session storage %q", driver)
	}
}

// logMetrics writes the gateway counters at debug level.
func (a *app) logMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		log.Err(err).Msg("Failed to gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			log.Debug().
				Str("metric", mf.GetName()).
				Str("labels", strings.Join(labels, ",")).
				Float64("value", m.GetCounter().GetValue()).
				Msg("Gateway metric")
		}
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Err(err).Msg("Failed to close resource")
		}
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
