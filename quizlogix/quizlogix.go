package quizlogix

import (
	"context"
	"encoding/json"
	"io"

	"github.com/heroiclabs/nakama-common/runtime"
)

// RPC identifiers exposed by the engine systems.
const (
	RpcIdScoreSubmit      = "score_submit"
	RpcIdLeaderboardGet   = "leaderboard_get"
	RpcIdRewardGrantsList = "reward_grants_list"
)

// quizlogixImpl implements the Quizlogix interface
type quizlogixImpl struct {
	publishers []Publisher

	// Store systems in a map by type
	systems map[SystemType]System
}

// Init initializes a Quizlogix type with the configurations provided.
func Init(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer, configs ...SystemConfig) (Quizlogix, error) {
	ql := &quizlogixImpl{
		publishers: make([]Publisher, 0),
		systems:    make(map[SystemType]System),
	}

	// Initialize systems based on provided configs
	for _, config := range configs {
		if err := ql.initSystem(ctx, logger, nk, initializer, config); err != nil {
			return nil, err
		}
	}

	return ql, nil
}

// initSystem initializes a specific system based on its type
func (q *quizlogixImpl) initSystem(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer, config SystemConfig) error {
	logger.Info("Initializing system type: %v, config file: %s", config.GetType(), config.GetConfigFile())

	// 1. Load and parse the config file
	configData, err := nk.ReadFile(config.GetConfigFile())
	if err != nil {
		logger.Error("Failed to read config file %s: %v", config.GetConfigFile(), err)
		return err
	}

	configBytes, err := io.ReadAll(configData)
	if err != nil {
		logger.Error("Failed to read config file contents: %v", err)
		return err
	}
	defer configData.Close()

	// 2. Create the appropriate system instance based on system type
	var system System

	switch config.GetType() {
	case SystemTypeScores:
		scoresConfig := &ScoresConfig{}
		if err := json.Unmarshal(configBytes, scoresConfig); err != nil {
			logger.Error("Failed to parse Scores system config: %v", err)
			return err
		}
		system = NewNakamaScoresSystem(scoresConfig)

	case SystemTypeLeaderboards:
		leaderboardsConfig := &LeaderboardsConfig{}
		if err := json.Unmarshal(configBytes, leaderboardsConfig); err != nil {
			logger.Error("Failed to parse Leaderboards system config: %v", err)
			return err
		}
		system = NewNakamaLeaderboardsSystem(leaderboardsConfig)

	case SystemTypeRewards:
		rewardsConfig := &RewardsConfig{}
		if err := json.Unmarshal(configBytes, rewardsConfig); err != nil {
			logger.Error("Failed to parse Rewards system config: %v", err)
			return err
		}
		system = NewNakamaRewardsSystem(rewardsConfig)

	default:
		logger.Error("Unknown system type: %v", config.GetType())
		return runtime.NewError("unknown system type", 3) // INVALID_ARGUMENT
	}

	// 3. Store the system and give it a reference back to the hub so the
	// submission pipeline can reach the other systems.
	q.systems[config.GetType()] = system

	if scoresSystem, ok := system.(*NakamaScoresSystem); ok {
		scoresSystem.SetQuizlogix(q)
	}
	if leaderboardsSystem, ok := system.(*NakamaLeaderboardsSystem); ok {
		leaderboardsSystem.SetQuizlogix(q)
	}
	if rewardsSystem, ok := system.(*NakamaRewardsSystem); ok {
		rewardsSystem.SetQuizlogix(q)
	}

	// 4. Register RPCs if requested
	if config.GetRegister() {
		if err := q.registerSystemRpcs(initializer, config.GetType()); err != nil {
			return err
		}
	}

	return nil
}

// registerSystemRpcs registers the appropriate RPCs for a given system type
func (q *quizlogixImpl) registerSystemRpcs(initializer runtime.Initializer, systemType SystemType) error {
	switch systemType {
	case SystemTypeScores:
		if err := initializer.RegisterRpc(RpcIdScoreSubmit, rpcScoreSubmit(q)); err != nil {
			return err
		}

	case SystemTypeLeaderboards:
		if err := initializer.RegisterRpc(RpcIdLeaderboardGet, rpcLeaderboardGet(q)); err != nil {
			return err
		}

	case SystemTypeRewards:
		if err := initializer.RegisterRpc(RpcIdRewardGrantsList, rpcRewardGrantsList(q)); err != nil {
			return err
		}

	default:
		// Unknown system type, no RPCs to register
	}

	return nil
}

// AddPublisher adds a publisher to the chain
func (q *quizlogixImpl) AddPublisher(publisher Publisher) {
	q.publishers = append(q.publishers, publisher)
}

func (q *quizlogixImpl) GetScoresSystem() ScoresSystem {
	if sys, ok := q.systems[SystemTypeScores].(ScoresSystem); ok {
		return sys
	}
	return nil
}

func (q *quizlogixImpl) GetLeaderboardsSystem() LeaderboardsSystem {
	if sys, ok := q.systems[SystemTypeLeaderboards].(LeaderboardsSystem); ok {
		return sys
	}
	return nil
}

func (q *quizlogixImpl) GetRewardsSystem() RewardsSystem {
	if sys, ok := q.systems[SystemTypeRewards].(RewardsSystem); ok {
		return sys
	}
	return nil
}

// SendPublisherEvents broadcasts events to all registered publishers
func (q *quizlogixImpl) SendPublisherEvents(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent) {
	if len(q.publishers) == 0 || len(events) == 0 {
		return
	}

	for _, publisher := range q.publishers {
		publisher.Send(ctx, logger, nk, userID, events)
	}
}
