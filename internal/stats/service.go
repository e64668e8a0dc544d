// Package stats computes per-user and global watch statistics and keeps
// them in the shared cache until a mutation invalidates them.
package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"animehub/internal/cache"
	"animehub/pkg/models"
)

const (
	GlobalKey     = "stats:global"
	userKeyPrefix = "stats:user:"
)

func UserKey(userID string) string { return userKeyPrefix + userID }

type Service struct {
	Repo  *Repo
	Cache cache.Cache
	TTL   time.Duration
	log   zerolog.Logger
}

// NewService returns a Service. A nil cache disables caching.
func NewService(repo *Repo, c cache.Cache, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{Repo: repo, Cache: c, TTL: ttl, log: log.With().Str("component", "stats").Logger()}
}

func (s *Service) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	key := UserKey(userID)
	var cached models.UserStats
	if s.load(ctx, key, &cached) {
		return &cached, nil
	}

	ok, err := s.Repo.userExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	out, err := s.Repo.UserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	var cached models.GlobalStats
	if s.load(ctx, GlobalKey, &cached) {
		return &cached, nil
	}
	out, err := s.Repo.GlobalStats(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, GlobalKey, out)
	return out, nil
}

// InvalidateUser drops the user's stats and the global stats, which
// aggregate over every user's entries.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, UserKey(userID), GlobalKey); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("invalidate user stats")
	}
}

func (s *Service) InvalidateAll(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.DeletePrefix(ctx, userKeyPrefix); err != nil {
		s.log.Warn().Err(err).Msg("invalidate user stats")
	}
	if err := s.Cache.Delete(ctx, GlobalKey); err != nil {
		s.log.Warn().Err(err).Msg("invalidate global stats")
	}
}

// load treats cache failures as misses.
func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.Cache == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, s.Cache, key, dst)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("stats cache read failed")
		return false
	}
	return ok
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.Cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.Cache, key, v, s.TTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("stats cache write failed")
	}
}
