package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowkernel/kernel/internal/actor"
	"github.com/flowkernel/kernel/internal/httpapi"
	"github.com/flowkernel/kernel/internal/humantask"
	"github.com/flowkernel/kernel/internal/telemetry"
)

type serveCmd struct {
	Port      int      `default:"3000" help:"HTTP listen port."`
	JWTSecret string   `name:"jwt-secret" help:"HMAC secret validating Bearer JWTs."`
	APIKey    []string `name:"api-key" help:"key:role pair granting API-key access, repeatable."`
	RateLimit int      `name:"rate-limit" help:"Requests per second per client; 0 disables limiting."`
	NoAuth    bool     `name:"no-auth" help:"Disable authentication entirely."`
}

func (c *serveCmd) Run() error {
	ctx := telemetry.Configure(context.Background())
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewMetricsFromEnv("github.com/flowkernel/kernel/control-plane")

	var auth *httpapi.Authenticator
	if c.NoAuth {
		auth = httpapi.NoAuth()
	} else {
		keys, err := parseAPIKeys(c.APIKey)
		if err != nil {
			return err
		}
		auth = httpapi.NewAuthenticator(c.JWTSecret, keys)
	}

	srv := httpapi.NewServer(httpapi.Config{
		Queue:       humantask.New(nil),
		Auth:        auth,
		RateLimit:   c.RateLimit,
		Logger:      logger,
		Metrics:     metrics,
		AIProviders: map[string]actor.Provider{},
	})

	addr := fmt.Sprintf(":%d", c.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "control plane listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func parseAPIKeys(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --api-key %q, expected key:role", p)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}
