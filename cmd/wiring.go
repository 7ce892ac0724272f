package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/roster-cli/internal/collaborator"
	"github.com/sells-group/roster-cli/internal/config"
	"github.com/sells-group/roster-cli/internal/location"
	"github.com/sells-group/roster-cli/internal/resilience"
	"github.com/sells-group/roster-cli/internal/store"
	"github.com/sells-group/roster-cli/pkg/google"
	"github.com/sells-group/roster-cli/pkg/mappls"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

func providerLimiter(c config.LocationConfig) *rate.Limiter {
	if c.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), 1)
}

// initResolver builds the location resolver from whichever provider
// credentials are configured.
func initResolver(c *config.Config) *location.Resolver {
	var mapplsClient mappls.Client
	if c.Mappls.Configured() {
		mapplsClient = mappls.NewClient(c.Mappls.ClientID, c.Mappls.ClientSecret,
			mappls.WithTokenURL(c.Mappls.TokenURL),
			mappls.WithBaseURL(c.Mappls.BaseURL),
			mappls.WithRateLimiter(providerLimiter(c.Location)),
		)
	}

	var googleClient google.Client
	if c.Google.APIKey != "" {
		googleClient = google.NewClient(c.Google.APIKey,
			google.WithBaseURL(c.Google.BaseURL),
			google.WithRateLimiter(providerLimiter(c.Location)),
		)
	}

	return location.NewResolver(
		location.NewMapplsProvider(mapplsClient),
		location.NewGoogleProvider(googleClient),
		location.WithTimeout(time.Duration(c.Location.TimeoutSecs)*time.Second),
		location.WithCacheTTL(time.Duration(c.Location.CacheTTLMinutes)*time.Minute),
	)
}

// initCollaborator builds the scrape collaborator for the configured mode.
func initCollaborator(c *config.Config) (collaborator.Collaborator, error) {
	switch c.Collaborator.Mode {
	case config.ModeFixture:
		fx, err := collaborator.LoadFixture(c.Collaborator.FixturePath)
		if err != nil {
			return nil, err
		}
		return fx, nil
	case config.ModeLocate:
		endpoints := make([]collaborator.Endpoint, 0, len(c.Collaborator.Endpoints))
		for _, ep := range c.Collaborator.Endpoints {
			endpoints = append(endpoints, collaborator.Endpoint{Name: ep.Name, URL: ep.URL, Key: ep.Key})
		}
		retry, breaker := resilience.EndpointPolicy(
			c.Collaborator.RetriesPerEndpoint,
			c.Collaborator.FailureThreshold,
			c.Collaborator.ResetTimeoutSecs,
		)
		opts := []collaborator.RemoteOption{
			collaborator.WithRetry(retry),
			collaborator.WithBreakers(resilience.NewServiceBreakers(breaker)),
		}
		if c.Collaborator.TimeoutSecs > 0 {
			opts = append(opts, collaborator.WithHTTPClient(&http.Client{
				Timeout: time.Duration(c.Collaborator.TimeoutSecs) * time.Second,
			}))
		}
		return collaborator.NewLocating(initResolver(c), collaborator.NewRemote(endpoints, opts...)), nil
	default:
		return nil, eris.Errorf("unknown collaborator mode %q", c.Collaborator.Mode)
	}
}
