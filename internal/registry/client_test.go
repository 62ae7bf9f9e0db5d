package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver struct {
	url string
	err error
}

func (f *fakeResolver) GetHealthyService(_ context.Context, _ string) (*ServiceInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, _ := url.Parse(f.url)
	port, _ := strconv.Atoi(u.Port())
	return &ServiceInfo{Address: u.Hostname(), Port: port}, nil
}

func testConfig(name string) ClientConfig {
	return ClientConfig{
		ServiceName:    name,
		TimeoutSeconds: 5,
		MaxRetries:     3,
		RetryMinWait:   time.Millisecond,
		RetryMaxWait:   5 * time.Millisecond,
	}
}

func TestInvokeSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/infer", r.URL.Path)
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	c := NewServiceClient(testConfig("svc"), &fakeResolver{url: srv.URL}, zap.NewNop())
	var out struct {
		Result string `json:"result"`
	}
	require.NoError(t, c.Invoke(context.Background(), map[string]string{"x": "1"}, &out))
	require.Equal(t, "ok", out.Result)
}

func TestInvokeRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	c := NewServiceClient(testConfig("svc"), &fakeResolver{url: srv.URL}, zap.NewNop())
	var out struct {
		Result string `json:"result"`
	}
	require.NoError(t, c.Invoke(context.Background(), nil, &out))
	require.Equal(t, 3, attempts)
}

func TestInvokeRetriesThreeTransportFailuresThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 3 {
			// Drop the connection without any response: a transport error.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	c := NewServiceClient(testConfig("svc"), &fakeResolver{url: srv.URL}, zap.NewNop())
	var out struct {
		Result string `json:"result"`
	}
	require.NoError(t, c.Invoke(context.Background(), nil, &out))
	require.Equal(t, 4, attempts, "max_retries=3 must allow 3 retries on top of the initial attempt, 4 total")
}

func TestInvokeDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad request`))
	}))
	defer srv.Close()

	c := NewServiceClient(testConfig("svc"), &fakeResolver{url: srv.URL}, zap.NewNop())
	err := c.Invoke(context.Background(), nil, nil)
	require.Error(t, err)
	require.Equal(t, 1, attempts, "a 4xx response must short-circuit retries")
	require.True(t, strings.Contains(err.Error(), "400"))
}

func TestInvokeFailsClosedWithoutFallbackWhenDiscoveryFails(t *testing.T) {
	c := NewServiceClient(testConfig("svc"), &fakeResolver{err: ErrServiceUnavailable}, zap.NewNop())
	err := c.Invoke(context.Background(), nil, nil)
	require.Error(t, err)
}
