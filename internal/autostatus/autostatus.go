// Package autostatus reconciles tracking statuses with watch progress.
package autostatus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"animehub/internal/catalog"
	"animehub/internal/metrics"
	"animehub/internal/sync"
	"animehub/internal/tracking"
	"animehub/pkg/models"
)

// MaxDetails bounds the transition list of an all-users run.
const MaxDetails = 200

type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

type StatsInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}

type Service struct {
	Tracking *tracking.Repo
	Catalog  *catalog.Repo
	Users    UserLister
	Stats    StatsInvalidator
	Hub      sync.Publisher
	log      zerolog.Logger
}

func NewService(tr *tracking.Repo, cat *catalog.Repo, users UserLister, stats StatsInvalidator, hub sync.Publisher, log zerolog.Logger) *Service {
	return &Service{
		Tracking: tr,
		Catalog:  cat,
		Users:    users,
		Stats:    stats,
		Hub:      hub,
		log:      log.With().Str("component", "autostatus").Logger(),
	}
}

// InferStatus returns completed once a known total is reached, watching
// when planned or paused progress has started, else current.
func InferStatus(watched, total int, current string) string {
	watched = max(0, watched)
	total = max(0, total)
	if total > 0 && watched >= total {
		return models.StatusCompleted
	}
	if watched > 0 && (current == models.StatusPlanned || current == models.StatusOnHold) {
		return models.StatusWatching
	}
	return current
}

// AutoUpdateStatuses applies InferStatus to every entry of the user and
// persists all transitions in one transaction.
func (s *Service) AutoUpdateStatuses(ctx context.Context, userID string) (*models.AutoStatusResult, error) {
	entries, err := s.Tracking.ListAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &models.AutoStatusResult{Details: []string{}}
	var changes []tracking.StatusChange
	for _, e := range entries {
		a, err := s.Catalog.GetByID(ctx, e.AnimeID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}

		target := InferStatus(e.EpisodesWatched, a.Episodes, e.Status)
		if target == e.Status {
			continue
		}
		line := fmt.Sprintf("%s: %s -> %s", a.Title, e.Status, target)
		res.Details = append(res.Details, line)
		changes = append(changes, tracking.StatusChange{
			EntryID:   e.ID,
			UserID:    userID,
			NewStatus: target,
			Message:   line,
		})
	}

	if len(changes) == 0 {
		return res, nil
	}
	if err := s.Tracking.ApplyStatusChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("apply status changes for %s: %w", userID, err)
	}
	res.UpdatedCount = len(changes)

	metrics.AutoStatusTransitions.Add(float64(len(changes)))
	if s.Stats != nil {
		s.Stats.InvalidateUser(ctx, userID)
	}
	if s.Hub != nil {
		s.Hub.Publish(sync.NewEvent(sync.EventStatusAuto, userID, res))
	}
	return res, nil
}

// AutoUpdateStatusesAllUsers runs AutoUpdateStatuses for every user. A
// failing user is logged and skipped.
func (s *Service) AutoUpdateStatusesAllUsers(ctx context.Context) (*models.AutoStatusResult, error) {
	ids, err := s.Users.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := &models.AutoStatusResult{Details: []string{}}
	for _, id := range ids {
		r, err := s.AutoUpdateStatuses(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("auto-status failed for user")
			continue
		}
		out.UpdatedCount += r.UpdatedCount
		out.Details = append(out.Details, r.Details...)
	}
	if len(out.Details) > MaxDetails {
		out.Details = out.Details[:MaxDetails]
	}

	s.log.Info().Int("users", len(ids)).Int("updated", out.UpdatedCount).Msg("auto-status run finished")
	return out, nil
}
