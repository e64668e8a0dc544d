package grpcserver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"animehub/internal/catalog"
	"animehub/pkg/database/dbtest"
)

func status(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCheckReportsCatalogReadiness(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := catalog.NewRepo(db)
	s := NewServer("127.0.0.1:0", db, repo, zerolog.Nop())

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ""))

	s.Check(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, CatalogService))

	_, err := repo.Create(ctx, catalog.CreateInput{Title: "Planetes", Genre: "Sci-Fi"})
	require.NoError(t, err)
	s.Check(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, CatalogService))

	require.NoError(t, db.Close())
	s.Check(ctx)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ""))
}
