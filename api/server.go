package api

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"

	"github.com/etherspot/relayx/config"
	"github.com/etherspot/relayx/relayer"
	"github.com/etherspot/relayx/storage"
)

// Server is the JSON-RPC over HTTP front door. Method dispatch is the
// geth rpc server's namespace_method convention; CORS wraps it when
// origins are configured.
type Server struct {
	rpcSrv   *rpc.Server
	httpSrv  *http.Server
	listener net.Listener
	logger   log.Logger
}

// NewServer registers the relayer and health namespaces.
func NewServer(cfg *config.Config, coord *relayer.Coordinator, pricer *relayer.Pricer, store *storage.Store, telemetry Telemetry) (*Server, error) {
	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("relayer", NewRelayerAPI(cfg, coord, pricer, telemetry)); err != nil {
		return nil, fmt.Errorf("register relayer namespace: %w", err)
	}
	if err := rpcSrv.RegisterName("health", NewHealthAPI(store)); err != nil {
		return nil, fmt.Errorf("register health namespace: %w", err)
	}
	handler := newCORSHandler(rpcSrv, cfg.CORSOrigins())
	return &Server{
		rpcSrv: rpcSrv,
		httpSrv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: rpc.DefaultHTTPTimeouts.ReadHeaderTimeout,
			ReadTimeout:       rpc.DefaultHTTPTimeouts.ReadTimeout,
			WriteTimeout:      rpc.DefaultHTTPTimeouts.WriteTimeout,
			IdleTimeout:       rpc.DefaultHTTPTimeouts.IdleTimeout,
		},
		logger: log.New("component", "api"),
	}, nil
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(host string, port int) error {
	endpoint := fmt.Sprintf("%s:%d", host, port)
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}
	s.listener = listener
	s.logger.Info("JSON-RPC server started", "endpoint", endpoint)
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server exited", "err", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.rpcSrv.Stop()
	return s.httpSrv.Shutdown(ctx)
}

// newCORSHandler wraps the RPC handler with the configured CORS policy:
// either "*" or an explicit origin list. No origins means same-origin
// only.
func newCORSHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(srv)
}
