package location

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roster-cli/pkg/google"
	"github.com/sells-group/roster-cli/pkg/mappls"
)

// Provider source identifiers reported in verdicts.
const (
	SourceMappls = "Mappls"
	SourceGoogle = "Google Places"
)

// ErrProviderAuth marks a provider whose credentials were rejected.
var ErrProviderAuth = eris.New("location: provider authentication failed")

// Candidate is a place returned by a provider, in provider order.
type Candidate struct {
	Name       string
	Address    string
	Categories []string
	Lat        float64
	Lng        float64
	HasPoint   bool
}

// Provider is a geocoding backend that answers free-text place searches.
type Provider interface {
	Name() string
	Available() bool
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// MapplsProvider searches Mappls. It is unavailable when no client is set.
type MapplsProvider struct {
	client mappls.Client
}

// NewMapplsProvider wraps a Mappls client. A nil client means credentials are
// not configured.
func NewMapplsProvider(client mappls.Client) *MapplsProvider {
	return &MapplsProvider{client: client}
}

// Name implements Provider.
func (p *MapplsProvider) Name() string { return SourceMappls }

// Available implements Provider.
func (p *MapplsProvider) Available() bool { return p != nil && p.client != nil }

// Search implements Provider.
func (p *MapplsProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	resp, err := p.client.TextSearch(ctx, query)
	if err != nil {
		if eris.Is(err, mappls.ErrAuth) {
			return nil, eris.Wrap(ErrProviderAuth, err.Error())
		}
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.SuggestedLocations))
	for _, loc := range resp.SuggestedLocations {
		c := Candidate{
			Name:       loc.PlaceName,
			Address:    loc.PlaceAddress,
			Categories: loc.Keywords,
			Lat:        float64(loc.Latitude),
			Lng:        float64(loc.Longitude),
		}
		c.HasPoint = c.Lat != 0 || c.Lng != 0
		out = append(out, c)
	}
	return out, nil
}

// GoogleProvider searches Google Places. It is unavailable when no client is set.
type GoogleProvider struct {
	client google.Client
}

// NewGoogleProvider wraps a Google Places client. A nil client means no API
// key is configured.
func NewGoogleProvider(client google.Client) *GoogleProvider {
	return &GoogleProvider{client: client}
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return SourceGoogle }

// Available implements Provider.
func (p *GoogleProvider) Available() bool { return p != nil && p.client != nil }

// Search implements Provider.
func (p *GoogleProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	resp, err := p.client.TextSearch(ctx, query)
	if err != nil {
		if eris.Is(err, google.ErrAuth) {
			return nil, eris.Wrap(ErrProviderAuth, err.Error())
		}
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Places))
	for _, pl := range resp.Places {
		c := Candidate{
			Name:       pl.DisplayName.Text,
			Address:    pl.FormattedAddress,
			Categories: pl.Types,
		}
		if pl.Location != nil {
			c.Lat, c.Lng, c.HasPoint = pl.Location.Latitude, pl.Location.Longitude, true
		}
		out = append(out, c)
	}
	return out, nil
}

var (
	_ Provider = (*MapplsProvider)(nil)
	_ Provider = (*GoogleProvider)(nil)
)
