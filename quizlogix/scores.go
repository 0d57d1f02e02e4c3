package quizlogix

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// ScoresConfig is the data definition for the ScoresSystem type.
type ScoresConfig struct {
	// GameTypes seeds the external game-type token to internal game ID
	// mapping. The game catalog collaborator may override it through the
	// catalog storage object, which takes precedence.
	GameTypes map[string]string `json:"game_types,omitempty"`

	// MaxRetries bounds how often a submission retries its atomic unit after
	// a partition conflict before the conflict is surfaced to the caller.
	MaxRetries int `json:"max_retries,omitempty"`

	// RetryBackoffMs is the base backoff between conflict retries.
	RetryBackoffMs int `json:"retry_backoff_ms,omitempty"`

	// CatalogCacheSize sizes the LRU cache in front of catalog lookups.
	CatalogCacheSize int `json:"catalog_cache_size,omitempty"`
}

// ScoreSubmitRequest is one incoming score event. Points are derived, never
// submitted directly.
type ScoreSubmitRequest struct {
	UserId         string `json:"user_id,omitempty"`
	GameType       string `json:"game_type"`
	CorrectAnswers int32  `json:"correct_answers"`
	TotalQuestions int32  `json:"total_questions"`
	SessionId      string `json:"session_id"`
}

// ScoreSubmitEntry reports the submission outcome for one period kind.
type ScoreSubmitEntry struct {
	Rank      int64    `json:"rank"`
	Updated   bool     `json:"updated"`
	RewardIds []string `json:"reward_ids,omitempty"`
}

// ScoreSubmitResponse is the result of a validated, fully processed score
// submission across all period kinds.
type ScoreSubmitResponse struct {
	Success bool                             `json:"success"`
	GameId  string                           `json:"game_id"`
	Points  int32                            `json:"points"`
	Entries map[PeriodKind]*ScoreSubmitEntry `json:"entries"`
}

// The ScoresSystem validates score events, resolves game-type tokens through
// the game catalog, and drives the aggregate-rank-reward pipeline once per
// period kind.
type ScoresSystem interface {
	System

	// SubmitScore validates the request, derives points, and runs the
	// aggregate write, rank recompute, reward match, and grant steps for each
	// of the three period kinds independently and in parallel. A failure in
	// one period kind never rolls back another.
	SubmitScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, req *ScoreSubmitRequest) (*ScoreSubmitResponse, error)

	// ResolveGameType maps an external game-type token to the internal game
	// ID through the game catalog. Unknown tokens yield ErrGameTypeUnknown.
	ResolveGameType(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameType string) (string, error)
}
