package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/njyeung/conreel/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ pipeline.Recorder = (*Pipeline)(nil)

func TestRecorderCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FrameDecoded(false)
	m.FrameDecoded(false)
	m.FrameDecoded(true)
	m.DecodeError()
	m.FrameEncoded(3 * time.Millisecond)
	m.FrameRendered(0)
	m.FrameRendered(-time.Millisecond)
	m.FrameRendered(5 * time.Millisecond)
	m.Seek()
	m.QueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDecoded.WithLabelValues("video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDecoded.WithLabelValues("audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesEncoded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesLate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Seeks))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Queue))
}

func TestRouterServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Seek()

	rec := httptest.NewRecorder()
	Router(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "conreel_seeks_total 1")

	rec = httptest.NewRecorder()
	Router(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, prometheus.NewRegistry()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
