package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	ready bool
	snap  any
	err   error
}

func (s *stubProvider) Ready() bool { return s.ready }

func (s *stubProvider) Snapshot(_ context.Context) (any, error) { return s.snap, s.err }

func do(t *testing.T, svc Service, path string) (int, string) {
	t.Helper()

	s, ok := svc.(*service)
	require.True(t, ok)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, http.NoBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestService_Routes(t *testing.T) {
	provider := &stubProvider{
		ready: true,
		snap:  map[string]string{"watermark": "2024-01-01T00:00:00"},
	}
	svc := NewService(&Config{}, provider, logrus.New())

	code, body := do(t, svc, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = do(t, svc, "/ready")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, svc, "/api/v1/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"watermark":"2024-01-01T00:00:00"}`, body)

	provider.ready = false
	code, _ = do(t, svc, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	provider.err = errors.New("redis down")
	code, body = do(t, svc, "/api/v1/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"error":"status unavailable","code":503}`, body)
}

func TestService_DisabledDoesNotListen(t *testing.T) {
	svc := NewService(&Config{Enabled: false}, &stubProvider{}, logrus.New())

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrAPIAddrRequired)
	assert.NoError(t, (&Config{Enabled: true, Addr: ":8080"}).Validate())
	assert.ErrorIs(t, (&Config{Enabled: true, Addr: ":8080", ShutdownTimeout: -time.Second}).Validate(), ErrInvalidShutdownTimeout)
	assert.NoError(t, (&Config{}).Validate())
	assert.Equal(t, 10*time.Second, (&Config{}).shutdownTimeout())
}
