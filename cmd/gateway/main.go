// Command gateway runs the MCP authorization core and session relay
// as a single HTTP process, per the configured AUTH_MODE.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/clients"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/httpapi"
	"github.com/stacklok/mcp-session-gateway/pkg/discovery"
	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
	"github.com/stacklok/mcp-session-gateway/pkg/mcphandler"
	"github.com/stacklok/mcp-session-gateway/pkg/relay"
	"github.com/stacklok/mcp-session-gateway/pkg/verifier"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := authserver.LoadConfig()
	if err != nil {
		logger.Errorw("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Errorw("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *authserver.Config) error {
	store, redisClient := newStore(cfg)

	registry := clients.NewRegistry(store)
	engine := flow.NewEngine(store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Timeout(middlewareTimeout))

	resourceMetadataURL := cfg.BaseURI + discovery.WellKnownResourcePath

	if cfg.Mode == authserver.AuthModeEmbedded || cfg.Mode == authserver.AuthModeAuthOnly {
		api := httpapi.NewAPI(cfg.BaseURI, registry, engine)
		httpapi.RegisterRoutes(r, api)
	}

	if cfg.Mode == authserver.AuthModeEmbedded || cfg.Mode == authserver.AuthModeExternal {
		v := newVerifier(cfg, engine)

		if redisClient == nil {
			return errors.New("REDIS_URL is required for the MCP session relay")
		}
		rel := relay.NewClientRelay(redisClient)
		ownership := relay.NewOwnership(store, rel.IsLive)
		routes := mcphandler.NewRoutes(redisClient, rel, ownership, unimplementedMCPServerFactory)
		mcphandler.Mount(r, v, resourceMetadataURL, routes)
	}

	authServerURI := cfg.BaseURI
	if cfg.Mode == authserver.AuthModeExternal {
		authServerURI = cfg.AuthServerURL
	}
	resourceHandler := discovery.ResourceHandler(discovery.NewResourceMetadata(cfg.BaseURI, authServerURI, []string{"mcp"}))
	r.Get(discovery.WellKnownAuthServerPath, discovery.AuthServerHandler(discovery.NewAuthServerMetadata(cfg.BaseURI)).ServeHTTP)
	r.Get(discovery.WellKnownResourcePath, resourceHandler.ServeHTTP)
	r.Get(discovery.WellKnownResourcePath+"/*", resourceHandler.ServeHTTP)

	port := cfg.Port
	if cfg.Mode == authserver.AuthModeAuthOnly && cfg.AuthServerPort != 0 {
		port = cfg.AuthServerPort
	}
	return serve(ctx, fmt.Sprintf(":%d", port), r)
}

func newStore(cfg *authserver.Config) (kvstore.Store, redis.UniversalClient) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory store (single replica only)")
		return kvstore.NewMemoryStore(), nil
	}

	opts := &redis.Options{Addr: cfg.RedisURL, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	return kvstore.NewRedisStore(client), client
}

func newVerifier(cfg *authserver.Config, engine *flow.Engine) verifier.Verifier {
	if cfg.Mode == authserver.AuthModeExternal {
		return verifier.NewCaching(verifier.NewExternal(cfg.AuthServerURL+"/introspect", "", "", cfg.BaseURI))
	}
	return verifier.NewCaching(verifier.NewEmbedded(engine))
}

// unimplementedMCPServerFactory is a placeholder MCPServer factory:
// the MCP tool/resource/prompt dispatch engine behind a session is
// supplied by the embedding application, not by this module.
func unimplementedMCPServerFactory(sid string) mcphandler.MCPServer {
	return unimplementedMCPServer{sid: sid}
}

type unimplementedMCPServer struct{ sid string }

func (s unimplementedMCPServer) HandleMessage(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("no MCP server wired for session %s", s.sid)
}

func serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infow("starting gateway http server", "address", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("gateway http server stopped")
	return nil
}
