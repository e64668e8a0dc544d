// Package grpcserver serves the standard gRPC health protocol for the
// database and the catalog.
package grpcserver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"animehub/internal/catalog"
)

// CatalogService is reported SERVING once the catalog holds entries.
const CatalogService = "animehub.catalog"

type Server struct {
	GRPC     *grpc.Server
	Health   *health.Server
	DB       *sql.DB
	Catalog  *catalog.Repo
	Addr     string
	Interval time.Duration
	log      zerolog.Logger
}

func NewServer(addr string, db *sql.DB, repo *catalog.Repo, log zerolog.Logger) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		GRPC:     gs,
		Health:   hs,
		DB:       db,
		Catalog:  repo,
		Addr:     addr,
		Interval: 15 * time.Second,
		log:      log.With().Str("component", "grpc").Logger(),
	}
}

// Check probes the database and catalog and updates the health statuses.
func (s *Server) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.DB.PingContext(ctx); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		s.Health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		s.Health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	n, err := s.Catalog.CountAll(ctx)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Msg("catalog count failed")
		s.Health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)
	case n == 0:
		s.Health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)
	default:
		s.Health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_SERVING)
	}
}

// Serve implements suture.Service: it listens on Addr, refreshes health
// every Interval and stops gracefully with ctx.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.GRPC.Serve(lis) }()
	s.log.Info().Str("addr", s.Addr).Msg("gRPC health server listening")

	s.Check(ctx)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("grpc serve: %w", err)
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			s.Health.Shutdown()
			s.GRPC.GracefulStop()
			return ctx.Err()
		}
	}
}

func (s *Server) String() string {
	return "grpc-health"
}
