package quizlogix

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

const (
	leaderboardsStorageCollection = "leaderboards"
	leaderboardPartitionPrefix    = "partition_"

	defaultMaxListLimit = 100
)

// NakamaLeaderboardsSystem implements the LeaderboardsSystem interface using Nakama as the backend.
type NakamaLeaderboardsSystem struct {
	config     *LeaderboardsConfig
	cronParser cron.Parser
	quizlogix  Quizlogix
}

// NewNakamaLeaderboardsSystem creates a new instance of the leaderboards system with the given configuration.
func NewNakamaLeaderboardsSystem(config *LeaderboardsConfig) *NakamaLeaderboardsSystem {
	return &NakamaLeaderboardsSystem{
		config:     config,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// SetQuizlogix sets the Quizlogix instance for this leaderboards system
func (l *NakamaLeaderboardsSystem) SetQuizlogix(ql Quizlogix) {
	l.quizlogix = ql
}

// GetType returns the system type for the leaderboards system.
func (l *NakamaLeaderboardsSystem) GetType() SystemType {
	return SystemTypeLeaderboards
}

// GetConfig returns the configuration for the leaderboards system.
func (l *NakamaLeaderboardsSystem) GetConfig() any {
	return l.config
}

// leaderboardPartitionState is the stored state of one (game, period kind)
// partition: every entry of the partition lives in a single storage object so
// the aggregate write and the rank recompute commit together, guarded by the
// object's OCC version.
type leaderboardPartitionState struct {
	GameID     string                       `json:"game_id"`
	PeriodKind PeriodKind                   `json:"period_kind"`
	Entries    map[string]*LeaderboardEntry `json:"entries"`
}

func leaderboardPartitionKey(gameID string, periodKind PeriodKind) string {
	return fmt.Sprintf("%s%s_%s", leaderboardPartitionPrefix, gameID, periodKind)
}

// StageScore applies a replace-if-greater update and the partition's dense
// rank recompute in memory, returning the pending version-checked storage
// write so the caller can commit it in one batch with further writes. A nil
// write means the incoming points did not beat the stored points.
func (l *NakamaLeaderboardsSystem) StageScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreUpdateAck, *runtime.StorageWrite, error) {
	if userID == "" || gameID == "" {
		return nil, nil, ErrBadInput
	}
	if !periodKind.Valid() {
		return nil, nil, ErrPeriodKindInvalid
	}

	state, version, err := l.readPartition(ctx, logger, nk, gameID, periodKind)
	if err != nil {
		return nil, nil, err
	}

	entry, exists := state.Entries[userID]
	if exists && points <= entry.Points {
		// Not strictly greater: leave the partition untouched and skip the
		// rank recompute entirely.
		return &ScoreUpdateAck{Updated: false, Points: entry.Points, Rank: entry.Rank}, nil, nil
	}

	now := time.Now().Unix()
	if !exists {
		entry = &LeaderboardEntry{UserID: userID}
		state.Entries[userID] = entry
	}
	entry.Points = points
	entry.UpdateTimeSec = now

	assignDenseRanks(state.Entries)

	data, err := json.Marshal(state)
	if err != nil {
		logger.Error("Failed to marshal leaderboard partition: %v", err)
		return nil, nil, ErrInternal
	}
	if version == "" {
		version = "*"
	}
	write := &runtime.StorageWrite{
		Collection:      leaderboardsStorageCollection,
		Key:             leaderboardPartitionKey(gameID, periodKind),
		Value:           string(data),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}
	return &ScoreUpdateAck{Updated: true, Points: entry.Points, Rank: entry.Rank}, write, nil
}

// ApplyScore applies a replace-if-greater update and recomputes the partition's dense ranks.
func (l *NakamaLeaderboardsSystem) ApplyScore(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID, gameID string, periodKind PeriodKind, points int32) (*ScoreUpdateAck, error) {
	ack, write, err := l.StageScore(ctx, logger, nk, userID, gameID, periodKind, points)
	if err != nil {
		return nil, err
	}
	if write == nil {
		return ack, nil
	}

	if _, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{write}); err != nil {
		logger.Debug("Leaderboard partition write rejected for game %s period %s: %v", gameID, periodKind, err)
		return nil, classifyPartitionWriteError(ctx, logger, nk, gameID, periodKind, write.Version)
	}
	return ack, nil
}

// List returns the ordered top entries for a partition, or for the merged
// global board when gameID is empty.
func (l *NakamaLeaderboardsSystem) List(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind, limit int) (*LeaderboardList, error) {
	if !periodKind.Valid() {
		return nil, ErrPeriodKindInvalid
	}

	maxLimit := l.config.MaxListLimit
	if maxLimit <= 0 {
		maxLimit = defaultMaxListLimit
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	var entries []*LeaderboardEntry
	var err error
	if gameID != "" {
		entries, err = l.partitionEntries(ctx, logger, nk, gameID, periodKind)
	} else {
		entries, err = l.globalEntries(ctx, logger, nk, periodKind)
	}
	if err != nil {
		return nil, err
	}

	// Rank ascending; ties keep a stable user ID order so repeated reads
	// paginate consistently, the rank values themselves are unaffected.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	records, err := l.joinUserRecords(ctx, logger, nk, entries)
	if err != nil {
		return nil, err
	}

	list := &LeaderboardList{
		GameID:     gameID,
		PeriodKind: periodKind,
		Records:    records,
	}
	if next, err := l.nextResetTime(periodKind, time.Now()); err != nil {
		logger.Error("Failed to parse reset schedule for period kind %s: %v", periodKind, err)
	} else {
		list.NextResetTimeSec = next
	}
	return list, nil
}

// partitionEntries loads the entries of a single (game, period kind) partition.
func (l *NakamaLeaderboardsSystem) partitionEntries(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind) ([]*LeaderboardEntry, error) {
	state, _, err := l.readPartition(ctx, logger, nk, gameID, periodKind)
	if err != nil {
		return nil, err
	}
	entries := make([]*LeaderboardEntry, 0, len(state.Entries))
	for _, entry := range state.Entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

// globalEntries merges every partition of the period kind, keeping each
// user's best points across games, and ranks the merged set at read time.
func (l *NakamaLeaderboardsSystem) globalEntries(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, periodKind PeriodKind) ([]*LeaderboardEntry, error) {
	suffix := fmt.Sprintf("_%s", periodKind)

	best := make(map[string]*LeaderboardEntry)
	cursor := ""
	for {
		objects, nextCursor, err := nk.StorageList(ctx, "", "", leaderboardsStorageCollection, 100, cursor)
		if err != nil {
			logger.Error("Failed to list leaderboard partitions: %v", err)
			return nil, ErrInternal
		}
		for _, obj := range objects {
			if !strings.HasPrefix(obj.Key, leaderboardPartitionPrefix) || !strings.HasSuffix(obj.Key, suffix) {
				continue
			}
			var state leaderboardPartitionState
			if err := json.Unmarshal([]byte(obj.Value), &state); err != nil {
				logger.Error("Failed to unmarshal leaderboard partition %s: %v", obj.Key, err)
				continue
			}
			if state.PeriodKind != periodKind {
				continue
			}
			for _, entry := range state.Entries {
				if cur, ok := best[entry.UserID]; !ok || entry.Points > cur.Points {
					merged := *entry
					best[entry.UserID] = &merged
				}
			}
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	assignDenseRanks(best)

	entries := make([]*LeaderboardEntry, 0, len(best))
	for _, entry := range best {
		entries = append(entries, entry)
	}
	return entries, nil
}

// joinUserRecords resolves display metadata for the given entries. A user
// record that cannot be found degrades to a placeholder username instead of
// failing the read.
func (l *NakamaLeaderboardsSystem) joinUserRecords(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, entries []*LeaderboardEntry) ([]*LeaderboardRecord, error) {
	records := make([]*LeaderboardRecord, 0, len(entries))
	if len(entries) == 0 {
		return records, nil
	}

	userIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		userIDs = append(userIDs, entry.UserID)
	}
	usernames := make(map[string]string, len(userIDs))
	avatars := make(map[string]string, len(userIDs))
	users, err := nk.UsersGetId(ctx, userIDs, nil)
	if err != nil {
		logger.Error("Failed to fetch user accounts for leaderboard read: %v", err)
		// Degrade to placeholders rather than failing the whole read.
	} else {
		for _, user := range users {
			usernames[user.Id] = user.Username
			avatars[user.Id] = user.AvatarUrl
		}
	}

	for _, entry := range entries {
		username, ok := usernames[entry.UserID]
		if !ok || username == "" {
			username = "Unknown Player"
		}
		records = append(records, &LeaderboardRecord{
			Rank:      entry.Rank,
			UserID:    entry.UserID,
			Username:  username,
			AvatarUrl: avatars[entry.UserID],
			Points:    entry.Points,
		})
	}
	return records, nil
}

// nextResetTime calculates the next window boundary from the configured CRON expression, if any.
func (l *NakamaLeaderboardsSystem) nextResetTime(periodKind PeriodKind, now time.Time) (int64, error) {
	if l.config == nil || len(l.config.ResetSchedules) == 0 {
		return 0, nil
	}
	cronExpr, ok := l.config.ResetSchedules[periodKind]
	if !ok || cronExpr == "" {
		return 0, nil
	}
	sched, err := l.cronParser.Parse(cronExpr)
	if err != nil {
		return 0, err
	}
	return sched.Next(now).Unix(), nil
}

// readPartition fetches the partition state and its storage version. A
// missing object yields an empty state with an empty version.
func (l *NakamaLeaderboardsSystem) readPartition(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind) (*leaderboardPartitionState, string, error) {
	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: leaderboardsStorageCollection,
			Key:        leaderboardPartitionKey(gameID, periodKind),
		},
	})
	if err != nil {
		logger.Error("Failed to read leaderboard partition: %v", err)
		return nil, "", ErrInternal
	}
	if len(objects) == 0 || objects[0] == nil || objects[0].Value == "" {
		return &leaderboardPartitionState{
			GameID:     gameID,
			PeriodKind: periodKind,
			Entries:    make(map[string]*LeaderboardEntry),
		}, "", nil
	}
	var state leaderboardPartitionState
	if err := json.Unmarshal([]byte(objects[0].Value), &state); err != nil {
		logger.Error("Failed to unmarshal leaderboard partition: %v", err)
		return nil, "", ErrInternal
	}
	if state.Entries == nil {
		state.Entries = make(map[string]*LeaderboardEntry)
	}
	if state.GameID == "" {
		state.GameID = gameID
	}
	if state.PeriodKind == "" {
		state.PeriodKind = periodKind
	}
	return &state, objects[0].Version, nil
}

// classifyPartitionWriteError distinguishes a lost version race, which the
// caller may retry, from a storage failure, which surfaces as internal. The
// partition is re-read: a version that moved away from the one the write
// expected means a concurrent writer won.
func classifyPartitionWriteError(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, gameID string, periodKind PeriodKind, expectedVersion string) error {
	objects, err := nk.StorageRead(ctx, []*runtime.StorageRead{
		{
			Collection: leaderboardsStorageCollection,
			Key:        leaderboardPartitionKey(gameID, periodKind),
		},
	})
	if err != nil {
		logger.Error("Failed to re-read leaderboard partition after rejected write: %v", err)
		return ErrInternal
	}
	current := ""
	if len(objects) > 0 && objects[0] != nil {
		current = objects[0].Version
	}
	if expectedVersion == "*" {
		if current != "" {
			return ErrPartitionConflict
		}
	} else if current != expectedVersion {
		return ErrPartitionConflict
	}
	return ErrInternal
}

// assignDenseRanks recomputes ranks for a whole partition: entries with equal
// points share a rank, and the rank of the next lower distinct point value is
// one plus the count of entries with strictly greater points.
func assignDenseRanks(entries map[string]*LeaderboardEntry) {
	sorted := make([]*LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		sorted = append(sorted, entry)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Points > sorted[j].Points
	})

	var prevPoints int32
	var prevRank int64
	for i, entry := range sorted {
		if i > 0 && entry.Points == prevPoints {
			entry.Rank = prevRank
			continue
		}
		entry.Rank = int64(i + 1)
		prevRank = entry.Rank
		prevPoints = entry.Points
	}
}
