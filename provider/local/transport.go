package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/xraph/jobhook/api"
	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/worker"
)

// DefaultTimeout bounds one dispatch round trip.
const DefaultTimeout = 60 * time.Second

// ErrSubmitFailed is returned when the endpoint answers with a non-2xx status.
var ErrSubmitFailed = errors.New("job submit failed")

// Transport delivers requests to the execution endpoint over HTTP. It
// implements worker.Dispatcher.
type Transport struct {
	baseURL string
	signer  *signing.Signer
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient sets the HTTP client used for dispatch.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) { t.client = c }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithRateLimit caps dispatches per second with a token bucket. A zero
// rate disables limiting. Burst defaults to 1.
func WithRateLimit(perSecond float64, burst int) TransportOption {
	return func(t *Transport) {
		if perSecond <= 0 {
			t.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// NewTransport creates a Transport posting to the endpoint under baseURL.
func NewTransport(baseURL string, signer *signing.Signer, opts ...TransportOption) *Transport {
	t := &Transport{
		baseURL: baseURL,
		signer:  signer,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dispatch signs req and POSTs it to the endpoint, waiting for the
// response. A non-2xx response is returned as an error wrapping
// ErrSubmitFailed with the status and body.
func (t *Transport) Dispatch(ctx context.Context, req worker.Request) error {
	body, err := req.Options.Canonical()
	if err != nil {
		return err
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("local: wait for dispatch slot: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	endpoint := api.JobURL(t.baseURL, req.DefinitionID, req.JobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("local: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(api.HeaderJobID, req.JobID)
	httpReq.Header.Set(api.HeaderJobSignature, t.signer.Sign(body))
	if req.Retry {
		httpReq.Header.Set(api.HeaderJobRetry, "1")
	}
	if req.IsAdmin() {
		httpReq.Header.Set(api.HeaderJobRetrySource, worker.RetrySourceAdmin)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	log := t.logger.With(
		slog.String("job_definition_id", req.DefinitionID),
		slog.String("job_id", req.JobID),
		slog.String("job_name", req.Options.Name),
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		log.Error("error submitting job", slog.String("endpoint", endpoint), slog.String("error", err.Error()))
		return fmt.Errorf("local: submit job %s: %w", req.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Error("failed submitting job",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(text)),
		)
		return fmt.Errorf("%w (%d) %s", ErrSubmitFailed, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
