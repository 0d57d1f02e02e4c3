package quizlogix

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRewardAssociation(t *testing.T, nk *MockNakamaModule, assoc *RewardGameAssociation) {
	t.Helper()
	data, err := json.Marshal(assoc)
	require.NoError(t, err)
	_, err = nk.StorageWrite(context.Background(), []*runtime.StorageWrite{
		{
			Collection: rewardAssociationsStorageCollection,
			Key:        rewardAssociationKey(assoc.GameID, assoc.PeriodKind),
			Value:      string(data),
		},
	})
	require.NoError(t, err)
}

func TestNakamaRewardsSystem_Creation(t *testing.T) {
	config := &RewardsConfig{EligiblePositions: 5}

	system := NewNakamaRewardsSystem(config)
	assert.NotNil(t, system)
	assert.Equal(t, SystemTypeRewards, system.GetType())
	assert.Equal(t, config, system.GetConfig())
}

func TestNakamaRewardsSystem_MatchRewards_ExactPosition(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	writeRewardAssociation(t, nk, &RewardGameAssociation{
		GameID:     "game1",
		PeriodKind: PeriodKindWeekly,
		Positions: map[string][]string{
			"1": {"gold_badge", "premium_week"},
			"3": {"bronze_badge"},
		},
	})

	rewardIDs, err := system.MatchRewards(ctx, logger, nk, "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"gold_badge", "premium_week"}, rewardIDs)

	// Position 2 has no mapping and there is no nearest-position fallback.
	rewardIDs, err = system.MatchRewards(ctx, logger, nk, "game1", PeriodKindWeekly, 2)
	require.NoError(t, err)
	assert.Empty(t, rewardIDs)

	rewardIDs, err = system.MatchRewards(ctx, logger, nk, "game1", PeriodKindWeekly, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"bronze_badge"}, rewardIDs)
}

func TestNakamaRewardsSystem_MatchRewards_EligibilityCutoff(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{EligiblePositions: 3})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	// Even a configured position past the cutoff is never checked.
	writeRewardAssociation(t, nk, &RewardGameAssociation{
		GameID:     "game1",
		PeriodKind: PeriodKindAllTime,
		Positions: map[string][]string{
			"4": {"should_never_match"},
		},
	})

	rewardIDs, err := system.MatchRewards(ctx, logger, nk, "game1", PeriodKindAllTime, 4)
	require.NoError(t, err)
	assert.Empty(t, rewardIDs)

	rewardIDs, err = system.MatchRewards(ctx, logger, nk, "game1", PeriodKindAllTime, 0)
	require.NoError(t, err)
	assert.Empty(t, rewardIDs)
}

func TestNakamaRewardsSystem_MatchRewards_NoAssociation(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	rewardIDs, err := system.MatchRewards(ctx, logger, nk, "game_without_rewards", PeriodKindMonthly, 1)
	require.NoError(t, err)
	assert.Empty(t, rewardIDs)
}

func TestNakamaRewardsSystem_Grant_ExactlyOnce(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	grant, created, err := system.Grant(ctx, logger, nk, "user1", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, grant)
	assert.NotEmpty(t, grant.Id)
	assert.Equal(t, "user1", grant.UserId)
	assert.Equal(t, int64(1), grant.Rank)

	// A second grant for the same key returns the original record unchanged.
	again, created, err := system.Grant(ctx, logger, nk, "user1", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, grant.Id, again.Id)
	assert.Equal(t, 1, nk.ObjectCount(rewardGrantsStorageCollection))
}

func TestNakamaRewardsSystem_Grant_IndependentKeys(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, created, err := system.Grant(ctx, logger, nk, "user1", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	assert.True(t, created)

	// Same reward in another period kind is a distinct grant.
	_, created, err = system.Grant(ctx, logger, nk, "user1", "gold_badge", "game1", PeriodKindMonthly, 1)
	require.NoError(t, err)
	assert.True(t, created)

	// Same key for another user is a distinct grant too.
	_, created, err = system.Grant(ctx, logger, nk, "user2", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, 3, nk.ObjectCount(rewardGrantsStorageCollection))
}

func TestNakamaRewardsSystem_ListGrants(t *testing.T) {
	system := NewNakamaRewardsSystem(&RewardsConfig{})
	logger := &mockLogger{}
	nk := NewMockNakama()
	ctx := context.Background()

	_, _, err := system.Grant(ctx, logger, nk, "user1", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)
	_, _, err = system.Grant(ctx, logger, nk, "user1", "silver_badge", "game2", PeriodKindMonthly, 2)
	require.NoError(t, err)
	_, _, err = system.Grant(ctx, logger, nk, "user2", "gold_badge", "game1", PeriodKindWeekly, 1)
	require.NoError(t, err)

	list, err := system.ListGrants(ctx, logger, nk, "user1")
	require.NoError(t, err)
	require.Len(t, list.Grants, 2)
	for _, grant := range list.Grants {
		assert.Equal(t, "user1", grant.UserId)
	}

	list, err = system.ListGrants(ctx, logger, nk, "user3")
	require.NoError(t, err)
	assert.Empty(t, list.Grants)

	_, err = system.ListGrants(ctx, logger, nk, "")
	assert.Equal(t, ErrBadInput, err)
}
