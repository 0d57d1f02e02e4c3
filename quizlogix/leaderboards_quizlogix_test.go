package quizlogix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test basic system creation
func TestNakamaLeaderboardsSystem_Creation(t *testing.T) {
	config := &LeaderboardsConfig{
		MaxListLimit: 50,
	}

	system := NewNakamaLeaderboardsSystem(config)
	assert.NotNil(t, system)
	assert.Equal(t, SystemTypeLeaderboards, system.GetType())
	assert.Equal(t, config, system.GetConfig())
}

func TestNakamaLeaderboardsSystem_ApplyScore_FirstEntry(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	ack, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 80)
	require.NoError(t, err)
	assert.True(t, ack.Updated)
	assert.Equal(t, int32(80), ack.Points)
	assert.Equal(t, int64(1), ack.Rank)
}

func TestNakamaLeaderboardsSystem_ApplyScore_ReplaceIfGreater(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindMonthly, 80)
	require.NoError(t, err)

	// Lower score must not replace the stored points.
	ack, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindMonthly, 60)
	require.NoError(t, err)
	assert.False(t, ack.Updated)
	assert.Equal(t, int32(80), ack.Points)

	// Equal score must not replace either.
	ack, err = system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindMonthly, 80)
	require.NoError(t, err)
	assert.False(t, ack.Updated)
	assert.Equal(t, int32(80), ack.Points)

	// Strictly greater replaces.
	ack, err = system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindMonthly, 95)
	require.NoError(t, err)
	assert.True(t, ack.Updated)
	assert.Equal(t, int32(95), ack.Points)
	assert.Equal(t, int64(1), ack.Rank)
}

func TestNakamaLeaderboardsSystem_ApplyScore_DenseRanksWithTies(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindWeekly, 90)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user2", "game1", PeriodKindWeekly, 75)
	require.NoError(t, err)

	// A tie at the top shares rank 1 and pushes the next distinct value to
	// rank 3, the count of strictly better entries plus one.
	ack, err := system.ApplyScore(ctx, logger, nk, "user3", "game1", PeriodKindWeekly, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ack.Rank)

	list, err := system.List(ctx, logger, nk, "game1", PeriodKindWeekly, 10)
	require.NoError(t, err)
	require.Len(t, list.Records, 3)
	assert.Equal(t, int64(1), list.Records[0].Rank)
	assert.Equal(t, int64(1), list.Records[1].Rank)
	assert.Equal(t, int64(3), list.Records[2].Rank)
	assert.Equal(t, "user2", list.Records[2].UserID)
}

func TestNakamaLeaderboardsSystem_ApplyScore_InvalidInput(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, err := system.ApplyScore(ctx, logger, nk, "", "game1", PeriodKindAllTime, 80)
	assert.Equal(t, ErrBadInput, err)

	_, err = system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKind("daily"), 80)
	assert.Equal(t, ErrPeriodKindInvalid, err)
}

func TestNakamaLeaderboardsSystem_ApplyScore_PartitionConflict(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	// A competing writer moves the partition version between this apply's
	// read and its write.
	nk.ConflictNextStorageWrite(leaderboardsStorageCollection, leaderboardPartitionKey("game1", PeriodKindAllTime), "")

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 80)
	assert.Equal(t, ErrPartitionConflict, err)

	// A retry of the same apply reads the fresh version and succeeds.
	ack, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 80)
	require.NoError(t, err)
	assert.True(t, ack.Updated)
	assert.Equal(t, int64(1), ack.Rank)
}

func TestNakamaLeaderboardsSystem_ApplyScore_StorageFailureIsNotConflict(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	// A hard storage failure leaves the version in place, so it must surface
	// as internal rather than as a retryable conflict.
	nk.FailNextStorageWrite(errors.New("storage unavailable"))

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 80)
	assert.Equal(t, ErrInternal, err)
}

func TestNakamaLeaderboardsSystem_List_EmptyPartition(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	list, err := system.List(ctx, logger, nk, "game_unknown", PeriodKindAllTime, 10)
	require.NoError(t, err)
	assert.Empty(t, list.Records)
}

func TestNakamaLeaderboardsSystem_List_OrderAndLimit(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 40)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user2", "game1", PeriodKindAllTime, 100)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user3", "game1", PeriodKindAllTime, 70)
	require.NoError(t, err)

	list, err := system.List(ctx, logger, nk, "game1", PeriodKindAllTime, 2)
	require.NoError(t, err)
	require.Len(t, list.Records, 2)
	assert.Equal(t, "user2", list.Records[0].UserID)
	assert.Equal(t, int32(100), list.Records[0].Points)
	assert.Equal(t, "user3", list.Records[1].UserID)
}

func TestNakamaLeaderboardsSystem_List_UsernameJoin(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	nk.AddUser("user1", "alice", "https://example.com/alice.png")

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 90)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user_deleted", "game1", PeriodKindAllTime, 80)
	require.NoError(t, err)

	list, err := system.List(ctx, logger, nk, "game1", PeriodKindAllTime, 10)
	require.NoError(t, err)
	require.Len(t, list.Records, 2)
	assert.Equal(t, "alice", list.Records[0].Username)
	assert.Equal(t, "https://example.com/alice.png", list.Records[0].AvatarUrl)

	// An entry whose account no longer resolves still appears, with a
	// placeholder display name.
	assert.Equal(t, "Unknown Player", list.Records[1].Username)
	assert.Equal(t, int32(80), list.Records[1].Points)
}

func TestNakamaLeaderboardsSystem_List_GlobalMergesBestPerUser(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, err := system.ApplyScore(ctx, logger, nk, "user1", "game1", PeriodKindAllTime, 60)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user1", "game2", PeriodKindAllTime, 85)
	require.NoError(t, err)
	_, err = system.ApplyScore(ctx, logger, nk, "user2", "game1", PeriodKindAllTime, 70)
	require.NoError(t, err)

	// A different period kind must not leak into the merge.
	_, err = system.ApplyScore(ctx, logger, nk, "user3", "game1", PeriodKindWeekly, 100)
	require.NoError(t, err)

	list, err := system.List(ctx, logger, nk, "", PeriodKindAllTime, 10)
	require.NoError(t, err)
	require.Len(t, list.Records, 2)
	assert.Equal(t, "user1", list.Records[0].UserID)
	assert.Equal(t, int32(85), list.Records[0].Points)
	assert.Equal(t, int64(1), list.Records[0].Rank)
	assert.Equal(t, "user2", list.Records[1].UserID)
	assert.Equal(t, int64(2), list.Records[1].Rank)
}

func TestNakamaLeaderboardsSystem_List_NextResetTime(t *testing.T) {
	system := NewNakamaLeaderboardsSystem(&LeaderboardsConfig{
		ResetSchedules: map[PeriodKind]string{
			PeriodKindWeekly: "0 0 * * 1",
		},
	})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	list, err := system.List(ctx, logger, nk, "game1", PeriodKindWeekly, 10)
	require.NoError(t, err)
	assert.Greater(t, list.NextResetTimeSec, time.Now().Unix())

	// A period kind without a schedule reports no boundary.
	list, err = system.List(ctx, logger, nk, "game1", PeriodKindAllTime, 10)
	require.NoError(t, err)
	assert.Zero(t, list.NextResetTimeSec)
}
