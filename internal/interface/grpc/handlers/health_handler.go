package handlers

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/subswap/internal/core/application"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the name clients can ask the health service about, besides
// the empty name for the whole server.
const ServiceName = "swapd"

const (
	checkTimeout  = 2 * time.Second
	watchInterval = 5 * time.Second
)

type serviceChecker interface {
	CheckService(ctx context.Context) error
}

type healthHandler struct {
	grpchealth.UnimplementedHealthServer

	svc           serviceChecker
	watchInterval time.Duration
}

func NewHealthHandler(svc *application.Service) grpchealth.HealthServer {
	handler := &healthHandler{watchInterval: watchInterval}
	if svc != nil {
		handler.svc = svc
	}
	return handler
}

func (h *healthHandler) Check(
	ctx context.Context, req *grpchealth.HealthCheckRequest,
) (*grpchealth.HealthCheckResponse, error) {
	if err := validateServiceName(req.GetService()); err != nil {
		return nil, err
	}
	return &grpchealth.HealthCheckResponse{Status: h.status(ctx)}, nil
}

// Watch sends the current status and then every change of it until the
// client goes away.
func (h *healthHandler) Watch(
	req *grpchealth.HealthCheckRequest, stream grpchealth.Health_WatchServer,
) error {
	if err := validateServiceName(req.GetService()); err != nil {
		return err
	}

	ctx := stream.Context()
	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()

	last := grpchealth.HealthCheckResponse_UNKNOWN
	for {
		if current := h.status(ctx); current != last {
			if err := stream.Send(&grpchealth.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
			last = current
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *healthHandler) status(ctx context.Context) grpchealth.HealthCheckResponse_ServingStatus {
	if h.svc == nil {
		log.Debug("health check: service not ready")
		return grpchealth.HealthCheckResponse_NOT_SERVING
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.svc.CheckService(checkCtx); err != nil {
		log.WithError(err).Warn("health check: failed to reach swap service")
		return grpchealth.HealthCheckResponse_NOT_SERVING
	}
	return grpchealth.HealthCheckResponse_SERVING
}

func validateServiceName(name string) error {
	if name != "" && name != ServiceName {
		return status.Errorf(codes.NotFound, "unknown service %q", name)
	}
	return nil
}
