package quizlogix

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Names of the events generated by the engine systems.
const (
	EventNameScoreApplied  = "score_applied"
	EventNameRewardGranted = "reward_granted"
)

type PublisherEvent struct {
	Name      string            `json:"name,omitempty"`
	Id        string            `json:"id,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Value     string            `json:"value,omitempty"`
}

// The Publisher describes a service or similar target implementation that wishes to receive and process
// analytics-style events generated server-side by the engine systems, such as applied score updates and
// reward grants.
//
// Each Publisher may choose to process or ignore each event as it sees fit. It may also choose to buffer
// events for batch processing at its discretion.
//
// Publisher implementations must safely handle concurrent calls, and must handle any errors or retries
// internally, callers will not repeat calls in case of errors.
type Publisher interface {
	// Send is called when there are one or more events generated.
	Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent)
}
