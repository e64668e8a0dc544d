package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/activity"
	"animehub/pkg/database/dbtest"
	"animehub/pkg/models"
)

func TestFollowGuardsAndActivity(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	alice := dbtest.InsertUser(t, db, "u-1", "alice")
	bob := dbtest.InsertUser(t, db, "u-2", "bob")
	acts := activity.NewRepo(db)
	repo := NewRepo(db, acts)

	f, err := repo.Follow(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, alice, f.FollowerID)
	assert.Equal(t, bob, f.FollowingID)

	_, err = repo.Follow(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrAlreadyFollowing)
	_, err = repo.Follow(ctx, alice, alice)
	assert.ErrorIs(t, err, ErrSelfFollow)
	_, err = repo.Follow(ctx, alice, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	logged, total, err := acts.ListByUser(ctx, alice, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total, "rejected follows leave no activity")
	assert.Equal(t, models.ActivityFollowCreated, logged[0].ActivityType)
	assert.Equal(t, "follow", logged[0].TargetType)
	assert.Equal(t, f.ID, logged[0].TargetID)
	assert.Equal(t, "started following bob", logged[0].Message)

	followers, following, err := repo.Counts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, followers)
	assert.Equal(t, 0, following)

	require.NoError(t, repo.Unfollow(ctx, alice, bob))
	assert.ErrorIs(t, repo.Unfollow(ctx, alice, bob), ErrNotFollowing)

	followers, _, err = repo.Counts(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, followers)
}

func TestFeedShowsOnlyFollowedUsers(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	alice := dbtest.InsertUser(t, db, "u-1", "alice")
	bob := dbtest.InsertUser(t, db, "u-2", "bob")
	carol := dbtest.InsertUser(t, db, "u-3", "carol")
	acts := activity.NewRepo(db)
	repo := NewRepo(db, acts)

	record := func(userID string, target int64) {
		require.NoError(t, acts.Record(ctx, db, models.Activity{
			UserID: userID, ActivityType: models.ActivityReviewCreated, TargetType: "review", TargetID: target,
		}))
	}
	record(bob, 1)
	record(carol, 2)
	record(bob, 3)

	feed, err := repo.Feed(ctx, alice, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, feed)

	_, err = repo.Follow(ctx, alice, bob)
	require.NoError(t, err)

	feed, err = repo.Feed(ctx, alice, 20, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.EqualValues(t, 3, feed[0].TargetID)
	assert.EqualValues(t, 1, feed[1].TargetID)
	for _, a := range feed {
		assert.Equal(t, bob, a.UserID)
	}

	page, err := repo.Feed(ctx, alice, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.EqualValues(t, 1, page[0].TargetID)

	// alice's own follow_created row is not in her feed.
	feed, err = repo.Feed(ctx, bob, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, feed)
}
