// Package mappls provides a Mappls (MapmyIndia) Places text search client
// authenticated with OAuth client credentials.
package mappls

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/roster-cli/internal/resilience"
)

const (
	defaultTokenURL = "https://outpost.mapmyindia.com/api/security/oauth/token"
	defaultBaseURL  = "https://atlas.mappls.com/api"

	// tokenSkew renews a token slightly before the server expires it.
	tokenSkew = 30 * time.Second
)

// ErrAuth is returned when the token endpoint or the search API rejects the
// configured credentials.
var ErrAuth = eris.New("mappls: authentication failed")

// Client performs Mappls Places operations.
type Client interface {
	TextSearch(ctx context.Context, query string) (*TextSearchResponse, error)
}

// TextSearchResponse is the response from the Places text search endpoint.
type TextSearchResponse struct {
	SuggestedLocations []Location `json:"suggestedLocations"`
}

// Location is a single suggested place.
type Location struct {
	PlaceName    string     `json:"placeName"`
	PlaceAddress string     `json:"placeAddress"`
	ELoc         string     `json:"eLoc"`
	Keywords     []string   `json:"keywords"`
	Latitude     Coordinate `json:"latitude"`
	Longitude    Coordinate `json:"longitude"`
}

// Coordinate decodes a latitude or longitude sent either as a JSON number or
// as a quoted string.
type Coordinate float64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "mappls: parse coordinate %q", s)
	}
	*c = Coordinate(f)
	return nil
}

// Option configures the client.
type Option func(*httpClient)

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) Option {
	return func(c *httpClient) {
		c.tokenURL = u
	}
}

// WithBaseURL overrides the Places API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimiter throttles outbound searches.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	baseURL      string
	http         *http.Client
	limiter      *rate.Limiter

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	nowFunc   func() time.Time
}

// NewClient creates a Mappls client. Tokens are fetched lazily and reused
// until shortly before they expire.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		baseURL:      defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.nowFunc().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "mappls: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req)
	if err != nil {
		return "", eris.Wrap(err, "mappls: token request")
	}
	if err := classifyStatus(status, body); err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "mappls: unmarshal token")
	}
	if tr.AccessToken == "" {
		return "", eris.Wrap(ErrAuth, "empty access token")
	}

	c.token = tr.AccessToken
	c.expiresAt = c.nowFunc().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *httpClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *httpClient) TextSearch(ctx context.Context, query string) (*TextSearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mappls: rate limit")
		}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/places/textsearch/json?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mappls: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mappls: send request")
	}
	// No content means no matches.
	if status == http.StatusNoContent {
		return &TextSearchResponse{}, nil
	}
	if err := classifyStatus(status, body); err != nil {
		if eris.Is(err, ErrAuth) {
			c.invalidateToken()
		}
		return nil, err
	}

	var result TextSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "mappls: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read response")
	}
	return body, resp.StatusCode, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return eris.Wrapf(ErrAuth, "status %d: %s", status, string(body))
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(
			eris.Errorf("mappls: unexpected status %d: %s", status, string(body)), status)
	default:
		return eris.Errorf("mappls: unexpected status %d: %s", status, string(body))
	}
}
