package quizlogix

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

func rpcRewardGrantsList(q *quizlogixImpl) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		rewardsSystem := q.GetRewardsSystem()
		if rewardsSystem == nil {
			return "", ErrSystemNotAvailable
		}

		userId, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if !ok || userId == "" {
			return "", ErrNoSessionUser
		}

		list, err := rewardsSystem.ListGrants(ctx, logger, nk, userId)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(list)
		if err != nil {
			logger.Error("Failed to marshal reward grant list: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}
