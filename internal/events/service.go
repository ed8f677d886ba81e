package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kinohub/strangler-proxy/internal/httpx"
)

const publishTimeout = 10 * time.Second

type Service struct {
	pub Publisher
	log *slog.Logger
	mux *http.ServeMux
}

func NewService(pub Publisher, log *slog.Logger) *Service {
	s := &Service{pub: pub, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/events/health", s.handleHealth)
	for name := range categories {
		cat := categories[name]
		s.mux.HandleFunc("POST /api/events/"+name, func(w http.ResponseWriter, r *http.Request) {
			s.handleCreate(w, r, cat)
		})
	}
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"status": true})
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request, cat category) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
		httpx.Error(w, http.StatusBadRequest, "Request body is required")
		return
	}
	for _, field := range cat.required {
		if _, ok := data[field]; !ok {
			httpx.Error(w, http.StatusBadRequest, "Missing required field: "+field)
			return
		}
	}

	ev := Event{
		ID:        eventID(cat, data),
		Type:      cat.name,
		Timestamp: eventTimestamp(cat, data),
		Payload:   data,
	}
	key := fmt.Sprintf("%v", data[cat.keyField])

	ctx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	defer cancel()

	rcpt, err := s.pub.Publish(ctx, cat.topic, key, ev)
	if err != nil {
		s.log.Error("publish_failed",
			slog.String("topic", cat.topic),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		httpx.Error(w, http.StatusInternalServerError, "Failed to publish event")
		return
	}

	s.log.Info("event_published",
		slog.String("topic", cat.topic),
		slog.String("event_id", ev.ID),
		slog.Int("partition", rcpt.Partition),
		slog.Int64("offset", rcpt.Offset),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "success",
		"partition": rcpt.Partition,
		"offset":    rcpt.Offset,
		"event":     ev,
	})
}

// eventID is "<category>-<entity>-<qualifier>-<8 hex>", e.g.
// "movie-42-created-9f3a01bc".
func eventID(cat category, data map[string]any) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%v-%v-%s", cat.name, data[cat.idField], data[cat.idField2], hex.EncodeToString(u[:])[:8])
}

func eventTimestamp(cat category, data map[string]any) string {
	if cat.payloadTimestamp {
		return fmt.Sprintf("%v", data["timestamp"])
	}
	return time.Now().UTC().Format(time.RFC3339)
}
