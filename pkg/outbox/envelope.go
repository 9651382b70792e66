package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CurrentEnvelopeVersion is stamped on envelopes whose emitter did not pick
// a version explicitly. Consumers switch on the version field, so changes to
// the envelope shape must bump it.
const CurrentEnvelopeVersion = 1

// ActorRef identifies who produced the event. Guest checkouts have no
// user id, only the flag.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Guest  bool       `json:"guest,omitempty"`
}

// PayloadEnvelope frames every payload stored in outbox_events. EventID is
// minted at emit time and rides through Pub/Sub as the message's identity,
// which is what downstream dedupe keys on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
