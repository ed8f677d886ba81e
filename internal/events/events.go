// Package events implements the events-publishing service the proxy fronts:
// it validates event submissions per category and hands them to a broker
// publisher, returning the partition and offset the event landed on.
package events

import "context"

// Event is the envelope written to the broker and echoed in the 201 body.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

type Receipt struct {
	Partition int   `json:"partition"`
	Offset    int64 `json:"offset"`
}

// Publisher delivers one event to a topic. Implementations must be safe for
// concurrent use; the HTTP handlers call Publish from per-request goroutines.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, ev Event) (Receipt, error)
	Close() error
}

// Topics carried by the service, one per event category.
var Topics = []string{"movie-events", "user-events", "payment-events"}

// category describes one event kind: its required payload fields, the two
// fields composing the event id, the partitioning key field, and whether the
// timestamp comes from the payload or from the clock.
type category struct {
	name              string
	topic             string
	required          []string
	idField, idField2 string
	keyField          string
	payloadTimestamp  bool
}

var categories = map[string]category{
	"movie": {
		name:     "movie",
		topic:    "movie-events",
		required: []string{"movie_id", "title", "action"},
		idField:  "movie_id",
		idField2: "action",
		keyField: "movie_id",
	},
	"user": {
		name:             "user",
		topic:            "user-events",
		required:         []string{"user_id", "action", "timestamp"},
		idField:          "user_id",
		idField2:         "action",
		keyField:         "user_id",
		payloadTimestamp: true,
	},
	"payment": {
		name:             "payment",
		topic:            "payment-events",
		required:         []string{"payment_id", "user_id", "amount", "status", "timestamp"},
		idField:          "payment_id",
		idField2:         "status",
		keyField:         "user_id",
		payloadTimestamp: true,
	},
}
