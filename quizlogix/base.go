package quizlogix

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrInternal           = runtime.NewError("internal error occurred", 13) // INTERNAL
	ErrBadInput           = runtime.NewError("bad input", 3)                // INVALID_ARGUMENT
	ErrNoSessionUser      = runtime.NewError("no user ID in session", 3)    // INVALID_ARGUMENT
	ErrPayloadDecode      = runtime.NewError("cannot decode json", 13)      // INTERNAL
	ErrPayloadEmpty       = runtime.NewError("payload should not be empty", 3)
	ErrPayloadEncode      = runtime.NewError("cannot encode json", 13)
	ErrSystemNotAvailable = runtime.NewError("system not available", 13)

	ErrUserIdInvalid      = runtime.NewError("user ID is not a valid identifier", 3)
	ErrSessionIdMissing   = runtime.NewError("session ID is required", 3)
	ErrScoreCountsInvalid = runtime.NewError("answer counts are invalid", 3)
	ErrPeriodKindInvalid  = runtime.NewError("period kind is invalid", 3)
	ErrGameTypeUnknown    = runtime.NewError("game type not found", 5)             // NOT_FOUND
	ErrPartitionConflict  = runtime.NewError("leaderboard partition conflict", 10) // ABORTED
)

// PeriodKind identifies one of the independent ranking windows tracked for
// every game. Each (game, period kind) pair forms its own leaderboard
// partition; an entry in one partition has no bearing on rank in another.
type PeriodKind string

const (
	PeriodKindAllTime PeriodKind = "all_time"
	PeriodKindMonthly PeriodKind = "monthly"
	PeriodKindWeekly  PeriodKind = "weekly"
)

// PeriodKinds returns all period kinds in a stable order.
func PeriodKinds() []PeriodKind {
	return []PeriodKind{PeriodKindAllTime, PeriodKindMonthly, PeriodKindWeekly}
}

// Valid reports whether the period kind is one of the tracked windows.
func (p PeriodKind) Valid() bool {
	switch p {
	case PeriodKindAllTime, PeriodKindMonthly, PeriodKindWeekly:
		return true
	}
	return false
}

// The SystemType identifies each of the engine systems.
type SystemType uint

const (
	SystemTypeUnknown SystemType = iota
	SystemTypeScores
	SystemTypeLeaderboards
	SystemTypeRewards
)

// A System is a base type for an engine system.
type System interface {
	// GetType provides the runtime type of the engine system.
	GetType() SystemType

	// GetConfig returns the configuration type of the engine system.
	GetConfig() any
}

// The SystemConfig describes the configuration that each engine system must use to configure itself.
type SystemConfig interface {
	// GetType returns the runtime type of the engine system.
	GetType() SystemType

	// GetConfigFile returns the configuration file used for the data definitions in the engine system.
	GetConfigFile() string

	// GetRegister returns true if the engine system's RPCs should be registered with the game server.
	GetRegister() bool
}

var _ SystemConfig = &systemConfig{}

type systemConfig struct {
	systemType SystemType
	configFile string
	register   bool
}

func (sc *systemConfig) GetType() SystemType {
	return sc.systemType
}
func (sc *systemConfig) GetConfigFile() string {
	return sc.configFile
}
func (sc *systemConfig) GetRegister() bool {
	return sc.register
}

// WithScoresSystem configures a ScoresSystem type and optionally registers its RPCs with the game server.
func WithScoresSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeScores,
		configFile: configFile,
		register:   register,
	}
}

// WithLeaderboardsSystem configures a LeaderboardsSystem type and optionally registers its RPCs with the game server.
func WithLeaderboardsSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeLeaderboards,
		configFile: configFile,
		register:   register,
	}
}

// WithRewardsSystem configures a RewardsSystem type and optionally registers its RPCs with the game server.
func WithRewardsSystem(configFile string, register bool) SystemConfig {
	return &systemConfig{
		systemType: SystemTypeRewards,
		configFile: configFile,
		register:   register,
	}
}

// Quizlogix provides a type which combines all engine systems.
type Quizlogix interface {
	// AddPublisher adds a publisher to the chain.
	AddPublisher(publisher Publisher)

	GetScoresSystem() ScoresSystem
	GetLeaderboardsSystem() LeaderboardsSystem
	GetRewardsSystem() RewardsSystem

	// SendPublisherEvents broadcasts events to all registered publishers.
	SendPublisherEvents(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent)
}
