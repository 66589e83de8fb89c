package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/pkg/config"
	xhttp "ForecastPull/pkg/http"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/scheduler"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServeRejectsBadScheduleBeforeListening(t *testing.T) {
	port := freePort(t)
	cfg := &config.Config{}
	cfg.Schedule.Forecast = "every hour"
	cfg.Schedule.GapAudit = "0 30 3 * * *"
	cfg.Server.ShutdownTimeout = time.Second

	l := logger.Nop()
	app := New(cfg, l, Deps{
		Scheduler:  scheduler.New(l),
		HTTPServer: xhttp.NewServer(l, nil, xhttp.WithPort(port)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := app.Serve(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast-cycle")

	// the port was never taken
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	require.NoError(t, err)
	_ = ln.Close()
}
