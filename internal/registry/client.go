package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrServiceUnavailable is returned when discovery finds no healthy
// instance and no fallback base URL is configured.
var ErrServiceUnavailable = errors.New("registry: no healthy service instance available")

// ClientError wraps any non-retryable or retries-exhausted failure from a
// ServiceClient call.
type ClientError struct {
	Service string
	Err     error
}

func (e *ClientError) Error() string { return fmt.Sprintf("%s client: %v", e.Service, e.Err) }
func (e *ClientError) Unwrap() error { return e.Err }

// ClientConfig configures discovery, retry, and timeout behavior for one
// ServiceClient instance.
type ClientConfig struct {
	ServiceName   string
	TimeoutSeconds float64
	MaxRetries    int
	RetryMinWait  time.Duration
	RetryMaxWait  time.Duration
	FallbackURL   string // used when Consul has no healthy instance, e.g. local dev
}

// Resolver discovers a healthy instance of a named service. *ServiceRegistry
// satisfies this; tests substitute a fake instead of standing up Consul.
type Resolver interface {
	GetHealthyService(ctx context.Context, serviceName string) (*ServiceInfo, error)
}

// ServiceClient is the scoped HTTP client one task holds for the duration
// of a single invocation against a named microservice: /load, /unload,
// /models, /status, /infer.
type ServiceClient struct {
	cfg      ClientConfig
	registry Resolver
	http     *http.Client
	log      *zap.Logger
}

// NewServiceClient opens a client scoped to the task's lifetime; callers
// should Close it when the task exits.
func NewServiceClient(cfg ClientConfig, registry Resolver, log *zap.Logger) *ServiceClient {
	return &ServiceClient{
		cfg:      cfg,
		registry: registry,
		http:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second))},
		log:      log,
	}
}

func (c *ServiceClient) Close() error { return nil }

func (c *ServiceClient) baseURL(ctx context.Context) (string, error) {
	info, err := c.registry.GetHealthyService(ctx, c.cfg.ServiceName)
	if err != nil {
		if c.cfg.FallbackURL != "" {
			return c.cfg.FallbackURL, nil
		}
		return "", &ClientError{Service: c.cfg.ServiceName, Err: err}
	}
	if info == nil {
		if c.cfg.FallbackURL != "" {
			return c.cfg.FallbackURL, nil
		}
		return "", &ClientError{Service: c.cfg.ServiceName, Err: ErrServiceUnavailable}
	}
	return fmt.Sprintf("http://%s:%d", info.Address, info.Port), nil
}

// retryableStatus reports whether response status code warrants a retry:
// any 5xx is retryable, any other response (including 4xx) is not.
func retryableStatus(code int) bool { return code >= 500 }

// doJSON issues method+endpoint with an optional JSON body, retrying
// transport errors and 5xx responses with exponential backoff between
// RetryMinWait and RetryMaxWait, capped at MaxRetries retries after the
// first attempt (MaxRetries+1 attempts in all). A 4xx
// response is wrapped in backoff.Permanent so it short-circuits the retry
// loop immediately, matching spec.md §4.4's retry policy.
func (c *ServiceClient) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &ClientError{Service: c.cfg.ServiceName, Err: fmt.Errorf("marshal request: %w", err)}
		}
		bodyBytes = b
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryMinWait
	bo.MaxInterval = c.cfg.RetryMaxWait
	policy := backoff.WithMaxRetries(bo, uint64(max(c.cfg.MaxRetries, 0)))
	policy2 := backoff.WithContext(policy, ctx)

	var respBody []byte
	operation := func() error {
		base, err := c.baseURL(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, base+endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return backoff.Permanent(&ClientError{Service: c.cfg.ServiceName, Err: err})
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("service request transport error, will retry", zap.String("service", c.cfg.ServiceName), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("%s: http %d: %s", endpoint, resp.StatusCode, string(data))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&ClientError{
				Service: c.cfg.ServiceName,
				Err:     fmt.Errorf("%s: http %d: %s", endpoint, resp.StatusCode, string(data)),
			})
		}

		respBody = data
		return nil
	}

	if err := backoff.Retry(operation, policy2); err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			return ce
		}
		return &ClientError{Service: c.cfg.ServiceName, Err: fmt.Errorf("exhausted retries: %w", err)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ClientError{Service: c.cfg.ServiceName, Err: fmt.Errorf("unmarshal response: %w", err)}
		}
	}
	return nil
}

// LoadModel calls POST /load.
func (c *ServiceClient) LoadModel(ctx context.Context, modelName, device string, out any) error {
	return c.doJSON(ctx, http.MethodPost, "/load", map[string]string{"model_name": modelName, "device": device}, out)
}

// UnloadModel calls POST /unload.
func (c *ServiceClient) UnloadModel(ctx context.Context, cleanupMemory bool, out any) error {
	return c.doJSON(ctx, http.MethodPost, "/unload", map[string]bool{"cleanup_memory": cleanupMemory}, out)
}

// ListModels calls GET /models.
func (c *ServiceClient) ListModels(ctx context.Context, out any) error {
	return c.doJSON(ctx, http.MethodGet, "/models", nil, out)
}

// GetStatus calls GET /status.
func (c *ServiceClient) GetStatus(ctx context.Context, out any) error {
	return c.doJSON(ctx, http.MethodGet, "/status", nil, out)
}

// Invoke calls POST /infer with request and decodes the response into out.
func (c *ServiceClient) Invoke(ctx context.Context, request any, out any) error {
	return c.doJSON(ctx, http.MethodPost, "/infer", request, out)
}
