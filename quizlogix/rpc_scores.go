package quizlogix

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

func rpcScoreSubmit(q *quizlogixImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		scoresSystem := q.GetScoresSystem()
		if scoresSystem == nil {
			return "", ErrSystemNotAvailable
		}

		if payload == "" {
			return "", ErrPayloadEmpty
		}

		var req ScoreSubmitRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			logger.Error("Failed to unmarshal ScoreSubmitRequest: %v", err)
			return "", ErrPayloadDecode
		}

		// The session user is the submitter unless the payload names one
		// explicitly (server-to-server submissions).
		userId, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if userId == "" && req.UserId == "" {
			return "", ErrNoSessionUser
		}

		resp, err := scoresSystem.SubmitScore(ctx, logger, nk, userId, &req)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(resp)
		if err != nil {
			logger.Error("Failed to marshal score submit response: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}
