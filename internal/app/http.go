package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notifeed/pkg/api"
	"notifeed/pkg/auth"
)

// startHTTP builds the handler chain, starts the HTTP server in a
// goroutine and returns a channel carrying any fatal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler(api.Deps{Pipeline: a.pipeline}))

	secCfg := auth.SecConfig{
		DeviceKeys: map[string]struct{}{},
		AdminKeys:  map[string]struct{}{},
		RPS:        a.eff.Config.Security.RateLimit.RPS,
		Burst:      a.eff.Config.Security.RateLimit.Burst,
	}
	for _, k := range a.eff.Config.Security.APIKeys.Device {
		secCfg.DeviceKeys[k] = struct{}{}
	}
	for _, k := range a.eff.Config.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: auth.Middleware(secCfg, mux)}
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}
