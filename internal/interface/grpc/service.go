package grpc_interface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ArkLabsHQ/subswap/internal/core/application"
	"github.com/ArkLabsHQ/subswap/internal/interface/grpc/handlers"
	"github.com/ArkLabsHQ/subswap/internal/interface/grpc/interceptors"
	"github.com/ArkLabsHQ/subswap/internal/interface/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

type service struct {
	cfg        Config
	appSvc     *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewService serves the gRPC health service and the REST API on the same
// port.
func NewService(cfg Config, appSvc *application.Service) (*service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}

	// gRPC is served through net/http, which terminates TLS for both APIs.
	grpcServer := grpc.NewServer(
		interceptors.UnaryInterceptor(),
		interceptors.StreamInterceptor(),
	)

	healthHandler := handlers.NewHealthHandler(appSvc)
	grpchealth.RegisterHealthServer(grpcServer, healthHandler)

	restHandler := web.NewService(appSvc)

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isGRPCRequest(r) {
			grpcServer.ServeHTTP(w, r)
			return
		}
		restHandler.ServeHTTP(w, r)
	}))
	httpServer := &http.Server{
		Addr:    cfg.address(),
		Handler: handler,
	}
	if cfg.insecure() {
		httpServer.Handler = h2c.NewHandler(handler, &http2.Server{})
	} else {
		tlsConfig, err := cfg.tlsConfig()
		if err != nil {
			return nil, err
		}
		httpServer.TLSConfig = tlsConfig
	}

	return &service{
		cfg:        cfg,
		appSvc:     appSvc,
		httpServer: httpServer,
		grpcServer: grpcServer,
	}, nil
}

// Serve blocks until the server is stopped.
func (s *service) Serve() error {
	listener, err := net.Listen("tcp", s.cfg.address())
	if err != nil {
		return err
	}
	if s.cfg.insecure() {
		log.Infof("started server at %s", s.cfg.address())
		err = s.httpServer.Serve(listener)
	} else {
		log.Infof("started TLS server at %s", s.cfg.address())
		err = s.httpServer.ServeTLS(listener, "", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *service) Stop() {
	// nolint:all
	s.httpServer.Shutdown(context.Background())
	log.Info("stopped HTTP server")

	s.grpcServer.Stop()
	log.Info("stopped GRPC server")

	s.appSvc.Stop()
}

func isGRPCRequest(r *http.Request) bool {
	return r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc")
}
