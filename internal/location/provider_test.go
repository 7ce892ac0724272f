package location

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/roster-cli/pkg/google"
	googlemocks "github.com/sells-group/roster-cli/pkg/google/mocks"
	"github.com/sells-group/roster-cli/pkg/mappls"
)

type stubMappls struct {
	resp *mappls.TextSearchResponse
	err  error
}

func (s stubMappls) TextSearch(_ context.Context, _ string) (*mappls.TextSearchResponse, error) {
	return s.resp, s.err
}

func TestMapplsProvider_Search(t *testing.T) {
	p := NewMapplsProvider(stubMappls{resp: &mappls.TextSearchResponse{
		SuggestedLocations: []mappls.Location{
			{PlaceName: "KIMS", PlaceAddress: "Minister Road, Secunderabad", Keywords: []string{"HSPGEN"}, Latitude: 17.44, Longitude: 78.49},
			{PlaceName: "KIMS Pharmacy", PlaceAddress: "Secunderabad"},
		},
	}})

	require.True(t, p.Available())
	assert.Equal(t, SourceMappls, p.Name())

	got, err := p.Search(context.Background(), "KIMS, Secunderabad")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"HSPGEN"}, got[0].Categories)
	assert.True(t, got[0].HasPoint)
	assert.False(t, got[1].HasPoint)
}

func TestMapplsProvider_AuthError(t *testing.T) {
	p := NewMapplsProvider(stubMappls{err: eris.Wrap(mappls.ErrAuth, "status 401")})

	_, err := p.Search(context.Background(), "q")
	assert.True(t, eris.Is(err, ErrProviderAuth))
}

func TestMapplsProvider_Unavailable(t *testing.T) {
	assert.False(t, NewMapplsProvider(nil).Available())
	var p *MapplsProvider
	assert.False(t, p.Available())
}

func TestGoogleProvider_Search(t *testing.T) {
	client := googlemocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, "Mercy General, Sacramento").Return(&google.TextSearchResponse{
		Places: []google.Place{{
			DisplayName:      google.DisplayName{Text: "Mercy General Hospital"},
			FormattedAddress: "4001 J St, Sacramento, CA 95819, USA",
			Types:            []string{"hospital"},
			Location:         &google.LatLng{Latitude: 38.5696, Longitude: -121.4547},
		}},
	}, nil)

	p := NewGoogleProvider(client)
	got, err := p.Search(context.Background(), "Mercy General, Sacramento")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mercy General Hospital", got[0].Name)
	assert.Equal(t, []string{"hospital"}, got[0].Categories)
	assert.True(t, got[0].HasPoint)
	assert.InDelta(t, -121.4547, got[0].Lng, 1e-9)
}

func TestGoogleProvider_AuthError(t *testing.T) {
	client := googlemocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).Return(nil, eris.Wrap(google.ErrAuth, "status 403"))

	_, err := NewGoogleProvider(client).Search(context.Background(), "q")
	assert.True(t, eris.Is(err, ErrProviderAuth))
}

func TestGoogleProvider_Unavailable(t *testing.T) {
	assert.False(t, NewGoogleProvider(nil).Available())
}
