package quizlogix

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/sync/errgroup"
)

const (
	gameCatalogStorageCollection = "game_catalog"
	gameCatalogStorageKey        = "games"

	defaultMaxRetries       = 3
	defaultRetryBackoffMs   = 50
	defaultCatalogCacheSize = 128
)

// NakamaScoresSystem implements the ScoresSystem interface using Nakama as the backend.
type NakamaScoresSystem struct {
	config       *ScoresConfig
	catalogCache *lru.Cache
	quizlogix    Quizlogix
}

// NewNakamaScoresSystem creates a new instance of the scores system with the given configuration.
func NewNakamaScoresSystem(config *ScoresConfig) *NakamaScoresSystem {
	cacheSize := defaultCatalogCacheSize
	if config != nil && config.CatalogCacheSize > 0 {
		cacheSize = config.CatalogCacheSize
	}
	cache, _ := lru.New(cacheSize)
	return &NakamaScoresSystem{
		config:       config,
		catalogCache: cache,
	}
}

// SetQuizlogix sets the Quizlogix instance for this scores system
func (s *NakamaScoresSystem) SetQuizlogix(ql Quizlogix) {
	s.quizlogix = ql
}

// GetType returns the system type for the scores system.
func (s *NakamaScoresSystem) GetType() SystemType {
	return SystemTypeScores
}

// GetConfig returns the configuration for the scores system.
func (s *NakamaScoresSystem) GetConfig() any {
	return s.config
}

func (s *NakamaScoresSystem) maxRetries() int {
	if s.config != nil && s.config.MaxRetries > 0 {
		return s.config.MaxRetries
	}
	return defaultMaxRetries
}

func (s *NakamaScoresSystem) retryBackoff() time.Duration {
	ms := defaultRetryBackoffMs
	if s.config != nil && s.config.RetryBackoffMs > 0 {
		ms = s.config.RetryBackoffMs
	}
	return time.Duration(ms) * time.Millisecond
}

// SubmitScore validates the request and drives the pipeline for all period kinds.
func (s *NakamaScoresSystem) SubmitScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, req *ScoreSubmitRequest) (*ScoreSubmitResponse, error) {
	if req == nil {
		return nil, ErrBadInput
	}
	if req.UserId != "" {
		userID = req.UserId
	}

	if err := validateScoreEvent(userID, req); err != nil {
		return nil, err
	}

	gameID, err := s.ResolveGameType(ctx, logger, nk, req.GameType)
	if err != nil {
		return nil, err
	}

	points := derivePoints(req.CorrectAnswers, req.TotalQuestions)

	resp := &ScoreSubmitResponse{
		Success: true,
		GameId:  gameID,
		Points:  points,
		Entries: make(map[PeriodKind]*ScoreSubmitEntry, 3),
	}

	var mu sync.Mutex
	var events []*PublisherEvent

	// The three period kinds are independent partitions and are processed in
	// parallel. Each one runs its own atomic unit, so a failure in one does
	// not roll back the others.
	g, gctx := errgroup.WithContext(ctx)
	for _, periodKind := range PeriodKinds() {
		periodKind := periodKind
		g.Go(func() error {
			entry, periodEvents, err := s.processPeriod(gctx, logger, nk, userID, gameID, periodKind, points)
			if err != nil {
				return err
			}
			mu.Lock()
			resp.Entries[periodKind] = entry
			events = append(events, periodEvents...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.quizlogix != nil {
		s.quizlogix.SendPublisherEvents(ctx, logger, nk, userID, events)
	}
	return resp, nil
}

// processPeriod runs the atomic unit for one period kind, retrying on
// partition conflicts.
func (s *NakamaScoresSystem) processPeriod(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreSubmitEntry, []*PublisherEvent, error) {
	leaderboards := s.quizlogix.GetLeaderboardsSystem()
	rewards := s.quizlogix.GetRewardsSystem()
	if leaderboards == nil || rewards == nil {
		return nil, nil, ErrSystemNotAvailable
	}

	var entry *ScoreSubmitEntry
	var events []*PublisherEvent
	var err error
	for attempt := 0; attempt < s.maxRetries(); attempt++ {
		if attempt > 0 {
			if waitErr := sleepContext(ctx, time.Duration(attempt)*s.retryBackoff()); waitErr != nil {
				return nil, nil, ErrPartitionConflict
			}
			logger.Debug("Retrying score apply for game %s period %s after conflict, attempt %d", gameID, periodKind, attempt+1)
		}
		entry, events, err = s.applyPeriodUnit(ctx, logger, nk, leaderboards, rewards, userID, gameID, periodKind, points)
		if err != ErrPartitionConflict {
			break
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return entry, events, nil
}

// applyPeriodUnit stages the aggregate write, the rank recompute, and any
// earned grants, then commits them in a single storage batch. A rejected
// batch leaves the period untouched, so an identical resubmission replays the
// whole unit including the reward evaluation.
func (s *NakamaScoresSystem) applyPeriodUnit(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, leaderboards LeaderboardsSystem, rewards RewardsSystem, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreSubmitEntry, []*PublisherEvent, error) {
	ack, partitionWrite, err := leaderboards.StageScore(ctx, logger, nk, userID, gameID, periodKind, points)
	if err != nil {
		return nil, nil, err
	}

	entry := &ScoreSubmitEntry{Rank: ack.Rank, Updated: ack.Updated}
	if partitionWrite == nil {
		// The stored points did not change: no rank recompute happened, so no
		// reward evaluation either.
		return entry, nil, nil
	}

	now := time.Now().Unix()
	events := []*PublisherEvent{
		{
			Name:      EventNameScoreApplied,
			Id:        gameID,
			Timestamp: now,
			Value:     strconv.FormatInt(int64(ack.Points), 10),
			Metadata: map[string]string{
				"period_kind": string(periodKind),
				"rank":        strconv.FormatInt(ack.Rank, 10),
			},
		},
	}

	// Rewards are matched against the freshly recomputed rank before anything
	// is written, so the grants land in the same batch as the partition.
	rewardIDs, err := rewards.MatchRewards(ctx, logger, nk, gameID, periodKind, ack.Rank)
	if err != nil {
		return nil, nil, err
	}

	writes := []*runtime.StorageWrite{partitionWrite}
	for _, rewardID := range rewardIDs {
		grant, grantWrite, err := rewards.StageGrant(ctx, logger, nk, userID, rewardID, gameID, periodKind, ack.Rank)
		if err != nil {
			return nil, nil, err
		}
		entry.RewardIds = append(entry.RewardIds, rewardID)
		if grantWrite == nil {
			// Already granted by an earlier submission.
			continue
		}
		writes = append(writes, grantWrite)
		events = append(events, &PublisherEvent{
			Name:      EventNameRewardGranted,
			Id:        grant.Id,
			Timestamp: grant.GrantTimeSec,
			Value:     rewardID,
			Metadata: map[string]string{
				"game_id":     gameID,
				"period_kind": string(periodKind),
				"rank":        strconv.FormatInt(grant.Rank, 10),
			},
		})
	}

	if _, err := nk.StorageWrite(ctx, writes); err != nil {
		logger.Debug("Period unit write rejected for game %s period %s: %v", gameID, periodKind, err)
		return nil, nil, classifyPartitionWriteError(ctx, logger, nk, gameID, periodKind, partitionWrite.Version)
	}
	return entry, events, nil
}

// ResolveGameType maps an external game-type token to an internal game ID.
// The catalog collaborator's storage object takes precedence over the config
// seed, and results are cached since the catalog is read on every submission.
func (s *NakamaScoresSystem) ResolveGameType(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameType string) (string, error) {
	if gameType == "" {
		return "", ErrBadInput
	}

	if cached, ok := s.catalogCache.Get(gameType); ok {
		return cached.(string), nil
	}

	catalog, err := s.readCatalog(ctx, logger, nk)
	if err != nil {
		return "", err
	}
	gameID, ok := catalog[gameType]
	if !ok && s.config != nil {
		gameID, ok = s.config.GameTypes[gameType]
	}
	if !ok || gameID == "" {
		return "", ErrGameTypeUnknown
	}

	s.catalogCache.Add(gameType, gameID)
	return gameID, nil
}

// readCatalog fetches the collaborator-owned game catalog mapping.
func (s *NakamaScoresSystem) readCatalog(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule) (map[string]string, error) {
	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: gameCatalogStorageCollection,
			Key:        gameCatalogStorageKey,
		},
	})
	if err != nil {
		logger.Error("Failed to read game catalog: %v", err)
		return nil, ErrInternal
	}
	if len(objects) == 0 || objects[0] == nil || objects[0].Value == "" {
		return map[string]string{}, nil
	}
	var catalog map[string]string
	if err := json.Unmarshal([]byte(objects[0].Value), &catalog); err != nil {
		logger.Error("Failed to unmarshal game catalog: %v", err)
		return nil, ErrInternal
	}
	return catalog, nil
}

// validateScoreEvent checks the shape of an incoming score event. It has no
// side effects.
func validateScoreEvent(userID string, req *ScoreSubmitRequest) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserIdInvalid
	}
	if req.SessionId == "" {
		return ErrSessionIdMissing
	}
	if req.GameType == "" {
		return ErrBadInput
	}
	if req.TotalQuestions <= 0 || req.CorrectAnswers < 0 || req.CorrectAnswers > req.TotalQuestions {
		return ErrScoreCountsInvalid
	}
	return nil
}

// derivePoints converts raw answer counts into leaderboard points.
func derivePoints(correct, total int32) int32 {
	return int32(math.Round(float64(correct) / float64(total) * 100))
}

// sleepContext waits for the given duration unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
