package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"quizforge/quizlogix"
)

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading Quizforge Nakama plugin...")

	if _, err := quizlogix.Init(ctx, logger, nk, initializer,
		quizlogix.WithScoresSystem("scores.json", true),
		quizlogix.WithLeaderboardsSystem("leaderboards.json", true),
		quizlogix.WithRewardsSystem("rewards.json", true),
	); err != nil {
		logger.Error("Failed to initialize Quizforge systems: %v", err)
		return err
	}

	logger.Info("Quizforge Nakama plugin loaded in '%d' msec.", time.Now().Sub(initStart).Milliseconds())
	return nil
}

// main is unused; Nakama loads the module via InitModule when built with -buildmode=plugin.
func main() {}
