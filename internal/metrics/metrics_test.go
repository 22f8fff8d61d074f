package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Claimed()
	m.Claimed()
	m.LostRace()
	m.Running(true)
	require.Equal(t, 1.0, testutil.ToFloat64(m.running))
	m.Running(false)
	m.Completed(true, time.Second)
	m.Completed(false, 2*time.Second)
	m.Completed(false, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.claimed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lostRaces))
	require.Equal(t, 0.0, testutil.ToFloat64(m.running))
	require.Equal(t, 1.0, testutil.ToFloat64(m.completed.WithLabelValues("finished")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.completed.WithLabelValues("failed")))
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.Claimed()
	m.LostRace()
	m.Running(true)
	m.Completed(true, time.Second)
	require.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Claimed()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "stq_tasks_claimed_total 1"))
}

func TestMetrics_ServeStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
