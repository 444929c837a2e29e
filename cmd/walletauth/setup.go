package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/pkg/logger"
)

// session is a configured client together with what it needs at shutdown
type session struct {
	auth     *walletauth.Auth
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	closers  []func() error
}

// newSession loads the configuration and wires the client
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}
	opts := []walletauth.Option{
		walletauth.WithLogger(logger.Component("walletauth")),
		walletauth.WithHTTPTimeout(cfg.HTTPTimeout),
		walletauth.WithMetrics(metrics.NewRecorder(s.registry)),
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, core.WrapInvalidInput(err, "invalid redis url")
		}
		client := redis.NewClient(redisOpts)
		s.closers = append(s.closers, client.Close)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: client,
		}, events.NewZerologAdapter(logger.Component("watermill")))
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, publisher.Close)

		opts = append(opts,
			walletauth.WithRefreshStore(store.NewRedisStore(client), cfg.RefreshTTL),
			walletauth.WithEventPublisher(events.NewWatermillPublisher(publisher, events.DefaultTopic)),
		)
	}

	s.auth, err = walletauth.New(cfg.BackendURL, level, cfg.WalletKeyPair(), cfg.AuthKeyPair(), opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// serveMetrics exposes the client metrics until ctx is done
func (s *session) serveMetrics(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.cfg.MetricsAddr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close resource")
		}
	}
	s.closers = nil
}
