package quizlogix

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// LeaderboardsConfig is the data definition for the LeaderboardsSystem type.
type LeaderboardsConfig struct {
	// ResetSchedules holds an optional CRON expression per period kind. The
	// engine only reports the next window boundary from these, the reset
	// itself is executed by an external process.
	ResetSchedules map[PeriodKind]string `json:"reset_schedules,omitempty"`

	// MaxListLimit caps the number of records a single read may return.
	MaxListLimit int `json:"max_list_limit,omitempty"`
}

// LeaderboardEntry is the persisted best-score aggregate for one user in one
// (game, period kind) partition. Points never decrease for the lifetime of
// the entry, and rank is recomputed for the whole partition on every write
// that changes points.
type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	Points        int32  `json:"points"`
	Rank          int64  `json:"rank"`
	UpdateTimeSec int64  `json:"update_time_sec"`
}

// ScoreUpdateAck reports the outcome of applying a score to one partition.
type ScoreUpdateAck struct {
	// Updated is false when the incoming points were not strictly greater
	// than the stored points, in which case nothing was written and no rank
	// recompute happened.
	Updated bool `json:"updated"`
	// Points holds the stored points after the apply.
	Points int32 `json:"points"`
	// Rank holds the user's rank in the partition after the apply.
	Rank int64 `json:"rank"`
}

// LeaderboardRecord is one row of a leaderboard read, joined with user
// display metadata.
type LeaderboardRecord struct {
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarUrl string `json:"avatar_url,omitempty"`
	Points    int32  `json:"points"`
}

// LeaderboardList is the ordered top-N projection of a partition, or of the
// merged global board when no game is given.
type LeaderboardList struct {
	GameID           string               `json:"game_id,omitempty"`
	PeriodKind       PeriodKind           `json:"period_kind"`
	Records          []*LeaderboardRecord `json:"records"`
	NextResetTimeSec int64                `json:"next_reset_time_sec,omitempty"`
}

// The LeaderboardsSystem maintains per-partition best-score aggregates and
// their dense rank ordering.
type LeaderboardsSystem interface {
	System

	// ApplyScore applies a replace-if-greater update for the user's entry in
	// the (gameID, periodKind) partition and recomputes the partition's ranks
	// in the same storage write. The write is version-checked: a concurrent
	// writer to the same partition causes ErrPartitionConflict, and the
	// caller decides whether to retry.
	ApplyScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreUpdateAck, error)

	// StageScore behaves like ApplyScore but leaves the partition write
	// uncommitted, returning it so the caller can batch it atomically with
	// further writes. A nil write means the points did not beat the stored
	// entry and there is nothing to commit.
	StageScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreUpdateAck, *runtime.StorageWrite, error)

	// List returns the top entries of the (gameID, periodKind) partition
	// ordered by rank. An empty gameID selects the global board across all
	// games for the period kind. An unknown or empty partition yields an
	// empty list, not an error.
	List(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind, limit int) (*LeaderboardList, error)
}
