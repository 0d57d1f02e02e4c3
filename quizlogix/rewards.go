package quizlogix

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// RewardsConfig is the data definition for the RewardsSystem type.
type RewardsConfig struct {
	// EligiblePositions is the highest rank that is ever checked against the
	// reward association table. Ranks below it are never eligible.
	EligiblePositions int64 `json:"eligible_positions,omitempty"`
}

// RewardGameAssociation is the externally configured mapping for one (game,
// period kind): for each 1-based rank position, the reward IDs granted to the
// user(s) occupying exactly that position. The engine treats it as read-only.
type RewardGameAssociation struct {
	GameID     string              `json:"game_id"`
	PeriodKind PeriodKind          `json:"period_kind"`
	Positions  map[string][]string `json:"positions"`
}

// RewardGrant records that a reward was given to a user for a (game, period
// kind). It is immutable once created and its existence is the sole
// idempotency guard against duplicate grants.
type RewardGrant struct {
	Id           string     `json:"id"`
	UserId       string     `json:"user_id"`
	RewardId     string     `json:"reward_id"`
	GameId       string     `json:"game_id"`
	PeriodKind   PeriodKind `json:"period_kind"`
	Rank         int64      `json:"rank"`
	GrantTimeSec int64      `json:"grant_time_sec"`
}

// RewardGrantList is a user's grant history.
type RewardGrantList struct {
	Grants []*RewardGrant `json:"grants"`
}

// The RewardsSystem matches freshly recomputed ranks against the configured
// reward associations and persists grants exactly once per
// (user, reward, game, period kind).
type RewardsSystem interface {
	System

	// MatchRewards returns the reward IDs bound to exactly the given rank in
	// the (gameID, periodKind) association, or an empty slice when the rank
	// is below the eligibility cutoff or nothing is configured. There is no
	// nearest-rank fallback.
	MatchRewards(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind, rank int64) ([]string, error)

	// Grant persists a grant for (userID, rewardID, gameID, periodKind) if
	// one does not already exist. The returned flag is true when the grant
	// was newly created; a pre-existing grant is returned unchanged.
	Grant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, rewardID, gameID string, periodKind PeriodKind, rank int64) (*RewardGrant, bool, error)

	// StageGrant behaves like Grant but leaves the conditional insert
	// uncommitted, returning it so the caller can batch it atomically with
	// other writes. An already recorded grant is returned with a nil write.
	StageGrant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, rewardID, gameID string, periodKind PeriodKind, rank int64) (*RewardGrant, *runtime.StorageWrite, error)

	// ListGrants returns every grant recorded for the user.
	ListGrants(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) (*RewardGrantList, error)
}
