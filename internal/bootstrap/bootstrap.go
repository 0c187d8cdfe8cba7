// Package bootstrap turns Config into ready clients for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"visualgen/internal/infra"
	"visualgen/internal/infra/credentials"
	"visualgen/internal/providers/jimeng"
	"visualgen/internal/providers/volcengine"
)

// KeyLoader reads stored key material. ok is false when none is stored.
type KeyLoader interface {
	VolcengineKeys(ctx context.Context) (credentials.VolcengineKeys, bool, error)
}

// Credentials resolves key material: the environment first, then loader when
// given. Neither yielding keys is a ConfigurationError.
func Credentials(ctx context.Context, cfg *infra.Config, loader KeyLoader) (volcengine.Credentials, error) {
	ak, sk := cfg.VolcengineAccessKey, cfg.VolcengineSecretKey
	region, service := cfg.VolcengineRegion, cfg.VolcengineService

	if !cfg.HasVolcengineKeys() && loader != nil {
		keys, ok, err := loader.VolcengineKeys(ctx)
		if err != nil {
			return volcengine.Credentials{}, fmt.Errorf("load stored credentials: %w", err)
		}
		if ok {
			ak, sk = keys.AccessKey, keys.SecretKey
			if keys.Region != "" {
				region = keys.Region
			}
			if keys.Service != "" {
				service = keys.Service
			}
		}
	}

	return volcengine.NewCredentials(ak, sk, region, service, volcengine.SecretEncoding(cfg.SecretKeyEncoding))
}

// OpenStore connects to DATABASE_URL and returns the credential store with a
// release func. It returns infra.ErrNoDatabase when no database is configured.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*credentials.Store, func(), error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	return credentials.NewStore(infra.NewSQLRunner(pool, logger)), pool.Close, nil
}

// DirectClient builds the signing client. Keys missing from the environment
// are looked up in the database when one is configured.
func DirectClient(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*jimeng.Client, error) {
	var loader KeyLoader
	if !cfg.HasVolcengineKeys() {
		store, release, err := OpenStore(ctx, cfg, logger)
		switch {
		case err == nil:
			defer release()
			loader = store
		case errors.Is(err, infra.ErrNoDatabase):
		default:
			logger.Warn().Err(err).Msg("credential store unavailable")
		}
	}

	creds, err := Credentials(ctx, cfg, loader)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.ProviderQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderQPS), 1)
	}
	return jimeng.NewClient(jimeng.Options{
		Credentials:    creds,
		BaseURL:        cfg.VolcengineBaseURL,
		Host:           cfg.VolcengineHost,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		Logger:         &logger,
		Locale:         cfg.Locale,
	})
}

// TaskClient picks the transport strategy named by cfg.Transport.
func TaskClient(ctx context.Context, cfg *infra.Config, logger infra.Logger) (jimeng.TaskClient, error) {
	switch cfg.Transport {
	case "proxy":
		return jimeng.NewProxyClient(jimeng.ProxyOptions{
			BaseURL:        cfg.ProxyBaseURL,
			Token:          cfg.ProxyToken,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         &logger,
		}), nil
	case "direct", "":
		return DirectClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Poller wires the configured interval and bound.
func Poller(client jimeng.TaskClient, cfg *infra.Config, logger infra.Logger, onProgress func(jimeng.Progress)) *jimeng.Poller {
	return jimeng.NewPoller(client, jimeng.PollerOptions{
		Interval:   cfg.PollInterval,
		MaxPolls:   cfg.MaxPolls,
		Locale:     cfg.Locale,
		OnProgress: onProgress,
		Logger:     &logger,
	})
}
