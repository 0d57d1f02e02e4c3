package quizlogix

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	rewardAssociationsStorageCollection = "reward_associations"
	rewardAssociationKeyPrefix          = "assoc_"
	rewardGrantsStorageCollection       = "reward_grants"
	rewardGrantKeyPrefix                = "grant_"

	defaultEligiblePositions = 3
)

// NakamaRewardsSystem implements the RewardsSystem interface using Nakama as the backend.
type NakamaRewardsSystem struct {
	config    *RewardsConfig
	quizlogix Quizlogix
}

// NewNakamaRewardsSystem creates a new instance of the rewards system with the given configuration.
func NewNakamaRewardsSystem(config *RewardsConfig) *NakamaRewardsSystem {
	return &NakamaRewardsSystem{
		config: config,
	}
}

// SetQuizlogix sets the Quizlogix instance for this rewards system
func (r *NakamaRewardsSystem) SetQuizlogix(ql Quizlogix) {
	r.quizlogix = ql
}

// GetType returns the system type for the rewards system.
func (r *NakamaRewardsSystem) GetType() SystemType {
	return SystemTypeRewards
}

// GetConfig returns the configuration for the rewards system.
func (r *NakamaRewardsSystem) GetConfig() any {
	return r.config
}

func (r *NakamaRewardsSystem) eligiblePositions() int64 {
	if r.config != nil && r.config.EligiblePositions > 0 {
		return r.config.EligiblePositions
	}
	return defaultEligiblePositions
}

func rewardAssociationKey(gameID string, periodKind PeriodKind) string {
	return fmt.Sprintf("%s%s_%s", rewardAssociationKeyPrefix, gameID, periodKind)
}

func rewardGrantKey(rewardID, gameID string, periodKind PeriodKind) string {
	return fmt.Sprintf("%s%s_%s_%s", rewardGrantKeyPrefix, rewardID, gameID, periodKind)
}

// MatchRewards returns the reward IDs configured for exactly the given rank.
func (r *NakamaRewardsSystem) MatchRewards(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind, rank int64) ([]string, error) {
	if gameID == "" {
		return nil, ErrBadInput
	}
	if !periodKind.Valid() {
		return nil, ErrPeriodKindInvalid
	}
	if rank < 1 || rank > r.eligiblePositions() {
		return []string{}, nil
	}

	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: rewardAssociationsStorageCollection,
			Key:        rewardAssociationKey(gameID, periodKind),
		},
	})
	if err != nil {
		logger.Error("Failed to read reward associations: %v", err)
		return nil, ErrInternal
	}
	if len(objects) == 0 || objects[0] == nil || objects[0].Value == "" {
		// No associations configured for this partition is a normal outcome.
		return []string{}, nil
	}

	var assoc RewardGameAssociation
	if err := json.Unmarshal([]byte(objects[0].Value), &assoc); err != nil {
		logger.Error("Failed to unmarshal reward associations: %v", err)
		return nil, ErrInternal
	}

	rewardIDs := assoc.Positions[strconv.FormatInt(rank, 10)]
	if rewardIDs == nil {
		return []string{}, nil
	}
	return rewardIDs, nil
}

// StageGrant builds the pending conditional insert for a grant so the caller
// can commit it atomically with other writes. When a grant already exists for
// the key, the existing grant is returned with a nil write.
func (r *NakamaRewardsSystem) StageGrant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, rewardID, gameID string, periodKind PeriodKind, rank int64) (*RewardGrant, *runtime.StorageWrite, error) {
	if userID == "" || rewardID == "" || gameID == "" {
		return nil, nil, ErrBadInput
	}
	if !periodKind.Valid() {
		return nil, nil, ErrPeriodKindInvalid
	}

	existing, err := r.getGrant(ctx, logger, nk, userID, rewardID, gameID, periodKind)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return existing, nil, nil
	}

	grant := &RewardGrant{
		Id:           uuid.NewString(),
		UserId:       userID,
		RewardId:     rewardID,
		GameId:       gameID,
		PeriodKind:   periodKind,
		Rank:         rank,
		GrantTimeSec: time.Now().Unix(),
	}
	data, err := json.Marshal(grant)
	if err != nil {
		logger.Error("Failed to marshal reward grant: %v", err)
		return nil, nil, ErrInternal
	}

	// Version "*" makes the write conditional on the object not existing, so
	// two concurrent grant attempts for the same key cannot both succeed.
	write := &runtime.StorageWrite{
		Collection:      rewardGrantsStorageCollection,
		Key:             rewardGrantKey(rewardID, gameID, periodKind),
		UserID:          userID,
		Value:           string(data),
		Version:         "*",
		PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}
	return grant, write, nil
}

// Grant persists a grant exactly once per (user, reward, game, period kind).
func (r *NakamaRewardsSystem) Grant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, rewardID, gameID string, periodKind PeriodKind, rank int64) (*RewardGrant, bool, error) {
	grant, write, err := r.StageGrant(ctx, logger, nk, userID, rewardID, gameID, periodKind, rank)
	if err != nil {
		return nil, false, err
	}
	if write == nil {
		return grant, false, nil
	}

	if _, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{write}); err != nil {
		// The insert was rejected: either a concurrent grant won the race or
		// storage failed. Re-read to distinguish the two.
		existing, readErr := r.getGrant(ctx, logger, nk, userID, rewardID, gameID, periodKind)
		if readErr != nil {
			return nil, false, readErr
		}
		if existing == nil {
			logger.Error("Failed to write reward grant: %v", err)
			return nil, false, ErrInternal
		}
		return existing, false, nil
	}
	return grant, true, nil
}

// ListGrants returns every grant recorded for the user.
func (r *NakamaRewardsSystem) ListGrants(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string) (*RewardGrantList, error) {
	if userID == "" {
		return nil, ErrBadInput
	}

	list := &RewardGrantList{Grants: make([]*RewardGrant, 0)}
	cursor := ""
	for {
		objects, nextCursor, err := nk.StorageList(ctx, "", userID, rewardGrantsStorageCollection, 100, cursor)
		if err != nil {
			logger.Error("Failed to list reward grants: %v", err)
			return nil, ErrInternal
		}
		for _, obj := range objects {
			var grant RewardGrant
			if err := json.Unmarshal([]byte(obj.Value), &grant); err != nil {
				logger.Error("Failed to unmarshal reward grant %s: %v", obj.Key, err)
				continue
			}
			list.Grants = append(list.Grants, &grant)
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	sort.Slice(list.Grants, func(i, j int) bool {
		return list.Grants[i].GrantTimeSec > list.Grants[j].GrantTimeSec
	})
	return list, nil
}

// getGrant fetches one grant by its storage key, or nil when absent.
func (r *NakamaRewardsSystem) getGrant(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, rewardID, gameID string, periodKind PeriodKind) (*RewardGrant, error) {
	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: rewardGrantsStorageCollection,
			Key:        rewardGrantKey(rewardID, gameID, periodKind),
			UserID:     userID,
		},
	})
	if err != nil {
		logger.Error("Failed to read reward grant: %v", err)
		return nil, ErrInternal
	}
	if len(objects) == 0 || objects[0] == nil || objects[0].Value == "" {
		return nil, nil
	}
	var grant RewardGrant
	if err := json.Unmarshal([]byte(objects[0].Value), &grant); err != nil {
		logger.Error("Failed to unmarshal reward grant: %v", err)
		return nil, ErrInternal
	}
	return &grant, nil
}
