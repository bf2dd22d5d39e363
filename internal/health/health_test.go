package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestCheckerLifecycle(t *testing.T) {
	c := New(nil, "")
	h := c.Handler()

	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
	assert.ErrorIs(t, c.CheckReadiness(), ErrNoPass)

	c.MarkPass()
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))
	assert.Equal(t, int64(1), c.Passes())

	first := errors.New("xor round 3: expected 511, got 509")
	c.MarkFailure(first)
	c.MarkFailure(errors.New("second"))
	c.MarkFailure(nil)
	assert.Same(t, first, c.Failure())
	assert.ErrorIs(t, c.CheckLiveness(), first)
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
}

func TestCheckerExportsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "fetchop")
	c.MarkPass()
	_ = status(t, c.Handler(), "/ready")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "fetchop_healthcheck_status")
}
