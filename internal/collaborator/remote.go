package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/resilience"
)

// Endpoint is one scraping-agent deployment, usually one per API key.
type Endpoint struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
	Key  string `mapstructure:"key" yaml:"key"`
}

// ErrNoEndpoints is returned when a Remote scraper has nothing to call.
var ErrNoEndpoints = eris.New("collaborator: no scraping endpoints configured")

// AgentError is an error reported by the scraping agent itself.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return e.Message
}

// RemoteOption configures a Remote scraper.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(r *Remote) {
		r.http = hc
	}
}

// WithRetry sets the per-endpoint retry policy.
func WithRetry(cfg resilience.RetryConfig) RemoteOption {
	return func(r *Remote) {
		r.retry = cfg
	}
}

// WithBreakers sets the per-endpoint circuit breakers.
func WithBreakers(b *resilience.ServiceBreakers) RemoteOption {
	return func(r *Remote) {
		r.breakers = b
	}
}

// Remote scrapes doctor listings through an external agent service. Each
// call starts at the next endpoint in round-robin order, retries transient
// failures a bounded number of times, and moves on to the following endpoint
// when one is rate limited, failing or behind an open circuit.
type Remote struct {
	endpoints []Endpoint
	http      *http.Client
	retry     resilience.RetryConfig
	breakers  *resilience.ServiceBreakers
	next      atomic.Uint64
}

// NewRemote creates a Remote scraper over the given endpoints.
func NewRemote(endpoints []Endpoint, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoints: endpoints,
		http:      &http.Client{Timeout: 5 * time.Minute},
		retry:     resilience.DefaultRetryConfig(),
		breakers:  resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type scrapeRequest struct {
	HospitalName    string `json:"hospital_name"`
	HospitalAddress string `json:"hospital_address"`
}

type scrapeResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// ScrapeDoctors implements DoctorScraper.
func (r *Remote) ScrapeDoctors(ctx context.Context, hospitalName, address string) ([]model.ScrapedDoctor, error) {
	if len(r.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	start := int(r.next.Add(1)-1) % len(r.endpoints)
	req := scrapeRequest{HospitalName: hospitalName, HospitalAddress: address}

	var lastErr error
	for i := range r.endpoints {
		ep := r.endpoints[(start+i)%len(r.endpoints)]

		retry := r.retry
		retry.ShouldRetry = retryable
		retry.OnRetry = resilience.RetryLogger("collaborator", ep.Name)

		output, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
			return resilience.ExecuteVal(ctx, r.breakers.Get(ep.Name), func(ctx context.Context) (string, error) {
				return r.call(ctx, ep, req)
			})
		})
		if err == nil {
			return ParseDoctors(output)
		}
		lastErr = err

		if ctx.Err() != nil || !rotatable(err) {
			return nil, err
		}
		zap.L().Warn("collaborator: endpoint failed, rotating",
			zap.String("endpoint", ep.Name),
			zap.Bool("rate_limited", resilience.IsRateLimited(err)),
			zap.Error(err),
		)
	}

	return nil, eris.Wrapf(lastErr, "collaborator: all %d endpoints failed", len(r.endpoints))
}

// retryable errors are retried on the same endpoint. A rate limit is not:
// the next endpoint is tried instead.
func retryable(err error) bool {
	return resilience.IsTransient(err) && !resilience.IsRateLimited(err)
}

// rotatable errors move the call on to the next endpoint.
func rotatable(err error) bool {
	return resilience.IsTransient(err) ||
		resilience.IsRateLimited(err) ||
		eris.Is(err, resilience.ErrCircuitOpen)
}

func (r *Remote) call(ctx context.Context, ep Endpoint, req scrapeRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "collaborator: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "collaborator: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ep.Key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.Key)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "collaborator: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "collaborator: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("collaborator: %s returned status %d: %s", ep.Name, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	// Agents may answer with the listing itself rather than an envelope.
	var sr scrapeResponse
	if err := json.Unmarshal(respBody, &sr); err != nil || (sr.Output == "" && sr.Error == "") {
		return string(respBody), nil
	}
	if sr.Error != "" {
		agentErr := &AgentError{Message: sr.Error}
		if resilience.IsRateLimited(agentErr) {
			return "", resilience.NewTransientError(agentErr, http.StatusTooManyRequests)
		}
		return "", agentErr
	}
	return sr.Output, nil
}

var _ DoctorScraper = (*Remote)(nil)
