package quizlogix

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

// LeaderboardGetRequest selects a leaderboard projection. An empty game type
// selects the global board for the period kind.
type LeaderboardGetRequest struct {
	PeriodKind PeriodKind `json:"period_kind"`
	GameType   string     `json:"game_type,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func rpcLeaderboardGet(q *quizlogixImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		leaderboardsSystem := q.GetLeaderboardsSystem()
		if leaderboardsSystem == nil {
			return "", ErrSystemNotAvailable
		}

		if payload == "" {
			return "", ErrPayloadEmpty
		}

		var req LeaderboardGetRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			logger.Error("Failed to unmarshal LeaderboardGetRequest: %v", err)
			return "", ErrPayloadDecode
		}
		if !req.PeriodKind.Valid() {
			return "", ErrPeriodKindInvalid
		}

		gameID := ""
		if req.GameType != "" {
			scoresSystem := q.GetScoresSystem()
			if scoresSystem == nil {
				return "", ErrSystemNotAvailable
			}
			var err error
			gameID, err = scoresSystem.ResolveGameType(ctx, logger, nk, req.GameType)
			if err != nil {
				return "", err
			}
		}

		list, err := leaderboardsSystem.List(ctx, logger, nk, gameID, req.PeriodKind, req.Limit)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(list)
		if err != nil {
			logger.Error("Failed to marshal leaderboard list: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}
