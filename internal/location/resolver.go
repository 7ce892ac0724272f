// Package location resolves a hospital's identity against geocoding
// providers and decides whether the roster's name and address describe a
// real healthcare facility.
package location

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roster-cli/internal/model"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultCacheTTL = 30 * time.Minute
)

// Failure reasons reported in unverified verdicts.
const (
	ReasonNoProvider    = "No location provider configured"
	ReasonAuthFailed    = "Location provider authentication failed"
	ReasonNoResults     = "No results found"
	ReasonNoHealthMatch = "Hospital not found at this exact location (nearby results rejected)"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each provider search.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCacheTTL sets how long verdicts are memoized per hospital.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.cacheTTL = d
		}
	}
}

// Resolver picks a provider by locale, filters and strictly verifies its
// candidates, then checks the hospital name.
type Resolver struct {
	domestic      Provider
	international Provider
	timeout       time.Duration
	cacheTTL      time.Duration
	memo          *cache.Cache
}

// NewResolver creates a Resolver. Either provider may be nil or unavailable.
func NewResolver(domestic, international Provider, opts ...Option) *Resolver {
	r := &Resolver{
		domestic:      domestic,
		international: international,
		timeout:       defaultTimeout,
		cacheTTL:      defaultCacheTTL,
	}
	for _, o := range opts {
		o(r)
	}
	r.memo = cache.New(r.cacheTTL, 2*r.cacheTTL)
	return r
}

// Resolve returns the verdict for a hospital. It never returns an error;
// every failure becomes an unverified verdict with a readable reason.
// Verdicts are memoized per (name, address) unless a provider call failed.
func (r *Resolver) Resolve(ctx context.Context, hospitalName, address string) model.LocationVerdict {
	key := memoKey(model.HospitalKey{Name: hospitalName, Address: address})
	if v, ok := r.memo.Get(key); ok {
		return v.(model.LocationVerdict)
	}

	verdict, err := r.resolve(ctx, hospitalName, fmt.Sprintf("%s, %s", hospitalName, address))
	if err == nil && ctx.Err() == nil {
		r.memo.SetDefault(key, verdict)
	}
	return verdict
}

func memoKey(k model.HospitalKey) string {
	return k.Name + "\x00" + k.Address
}

// resolve returns the verdict and, when the verdict stems from a failed
// provider call rather than from the provider's answer, the last such error.
func (r *Resolver) resolve(ctx context.Context, hospitalName, query string) (model.LocationVerdict, error) {
	providers := r.providerOrder(query)
	if len(providers) == 0 {
		return model.Unverified("none", ReasonNoProvider), nil
	}

	// A rejected credential switches providers once; nothing is retried.
	var (
		verdict model.LocationVerdict
		lastErr error
	)
	for i, p := range providers {
		var err error
		verdict, err = r.locate(ctx, p, query)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if eris.Is(err, ErrProviderAuth) {
			zap.L().Warn("location: provider authentication failed",
				zap.String("provider", p.Name()),
				zap.Bool("fallback", i+1 < len(providers)),
				zap.Error(err),
			)
			verdict = model.Unverified(p.Name(), ReasonAuthFailed)
			continue
		}
		zap.L().Warn("location: provider search failed",
			zap.String("provider", p.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		return model.Unverified(p.Name(), err.Error()), err
	}

	if !verdict.Verified {
		return verdict, lastErr
	}

	found := FoundName(verdict.CanonicalName)
	if !VerifyName(hospitalName, found) {
		zap.L().Info("location: hospital name mismatch",
			zap.String("expected", hospitalName),
			zap.String("found", found),
		)
		return model.LocationVerdict{
			Source:          verdict.Source,
			ConfidenceScore: verdict.ConfidenceScore,
			Error:           fmt.Sprintf("Hospital name mismatch: expected '%s' but found '%s'", hospitalName, found),
		}, nil
	}
	return verdict, nil
}

// providerOrder returns the usable providers, preferred first.
func (r *Resolver) providerOrder(query string) []Provider {
	preferred, other := r.international, r.domestic
	if IsDomestic(query) {
		preferred, other = r.domestic, r.international
	}

	var out []Provider
	for _, p := range []Provider{preferred, other} {
		if p != nil && p.Available() {
			out = append(out, p)
		}
	}
	return out
}

// locate searches one provider and returns the first healthcare candidate
// that passes strict verification.
func (r *Resolver) locate(ctx context.Context, p Provider, query string) (model.LocationVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	candidates, err := p.Search(ctx, query)
	if err != nil {
		return model.LocationVerdict{}, eris.Wrapf(err, "location: %s search", p.Name())
	}
	if len(candidates) == 0 {
		return model.Unverified(p.Name(), ReasonNoResults), nil
	}

	for _, c := range candidates {
		if !IsHealthcare(c) {
			continue
		}
		ok, score := StrictVerify(query, c.Name, c.Address)
		if !ok {
			zap.L().Debug("location: rejecting nearby candidate",
				zap.String("provider", p.Name()),
				zap.String("candidate", c.Name),
				zap.Float64("score", score),
			)
			continue
		}

		v := model.LocationVerdict{
			Verified:         true,
			Source:           p.Name(),
			CanonicalName:    c.Name,
			CanonicalAddress: c.Address,
			ConfidenceScore:  score,
		}
		if c.HasPoint {
			v.Point = model.NewPoint(c.Lat, c.Lng)
		}
		return v, nil
	}

	return model.Unverified(p.Name(), ReasonNoHealthMatch), nil
}
