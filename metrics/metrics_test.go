package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ emaprotocol.Observer = (*Collector)(nil)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Nil", nil, ResultOK},
		{"Timeout", &emaprotocol.TimeoutError{Op: emaprotocol.OpReceive, Limit: time.Second}, ResultTimeout},
		{"Connection", emaprotocol.NewConnectionError("refused", io.EOF), ResultConnection},
		{"Config", emaprotocol.NewConfigurationError("no host", nil), ResultConfig},
		{"Cancelled", fmt.Errorf("exchange aborted: %w", context.Canceled), ResultCancelled},
		{"Other", errors.New("boom"), ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Result(tt.err))
		})
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.ObserveExchange("powerOn", 20*time.Millisecond, nil)
	c.ObserveExchange("powerOn", 30*time.Millisecond, nil)
	c.ObserveExchange("moveSamPos", time.Second, &emaprotocol.TimeoutError{Op: emaprotocol.OpReceive, Limit: time.Second})

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `ema_exchanges_total{command="powerOn",result="ok"} 2`)
	assert.Contains(t, body, `ema_exchanges_total{command="moveSamPos",result="timeout"} 1`)
	assert.Contains(t, body, `ema_exchange_duration_seconds_count{command="powerOn"} 2`)
	assert.Contains(t, body, "go_goroutines")
}

func TestCollectorObservesClient(t *testing.T) {
	c := NewCollector()
	client := emaprotocol.NewClient(emaprotocol.Peer{}, emaprotocol.WithObserver(c))

	_, err := client.Send(context.Background(), "powerOn")
	require.ErrorIs(t, err, emaprotocol.ErrConfiguration)

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `ema_exchanges_total{command="powerOn",result="config"} 1`)
}

func TestServe(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := NewCollector()
	c.ObserveExchange("home", time.Millisecond, nil)

	srv, err := Serve("127.0.0.1:0", c, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ema_exchanges_total{command="home",result="ok"} 1`)
}
