package events

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestService() (*Service, *MemoryPublisher) {
	pub := NewMemoryPublisher()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewService(pub, log), pub
}

func doJSON(t *testing.T, svc *Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	return rec
}

func TestHealthReturnsStatusTrue(t *testing.T) {
	svc, _ := newTestService()
	rec := doJSON(t, svc, "GET", "/api/events/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body["status"] {
		t.Fatalf("expected status true, got %v", body)
	}
}

func TestCreateMovieEvent(t *testing.T) {
	svc, pub := newTestService()
	rec := doJSON(t, svc, "POST", "/api/events/movie",
		`{"movie_id": 42, "title": "Heat", "action": "created"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status    string `json:"status"`
		Partition int    `json:"partition"`
		Offset    int64  `json:"offset"`
		Event     Event  `json:"event"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "success" || resp.Partition != 0 || resp.Offset != 0 {
		t.Fatalf("unexpected receipt: %+v", resp)
	}
	if !strings.HasPrefix(resp.Event.ID, "movie-42-created-") {
		t.Fatalf("unexpected event id %q", resp.Event.ID)
	}
	if resp.Event.Type != "movie" {
		t.Fatalf("unexpected event type %q", resp.Event.Type)
	}
	if resp.Event.Timestamp == "" {
		t.Fatal("expected a generated timestamp")
	}

	msgs := pub.Messages("movie-events")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(msgs))
	}
	if msgs[0].Key != "42" {
		t.Fatalf("expected key 42, got %q", msgs[0].Key)
	}
}

func TestCreateMovieEventMissingFieldNamesIt(t *testing.T) {
	svc, pub := newTestService()
	rec := doJSON(t, svc, "POST", "/api/events/movie", `{"movie_id": 42, "action": "created"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "Missing required field: title" {
		t.Fatalf("unexpected error %q", body["error"])
	}
	if len(pub.Messages("movie-events")) != 0 {
		t.Fatal("nothing should have been published")
	}
}

func TestCreateEventEmptyBody(t *testing.T) {
	svc, _ := newTestService()
	for _, body := range []string{"", "{}", "null"} {
		rec := doJSON(t, svc, "POST", "/api/events/user", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Request body is required") {
			t.Fatalf("body %q: unexpected error %q", body, rec.Body.String())
		}
	}
}

func TestCreateUserEventUsesPayloadTimestamp(t *testing.T) {
	svc, _ := newTestService()
	rec := doJSON(t, svc, "POST", "/api/events/user",
		`{"user_id": "u7", "action": "signup", "timestamp": "2026-08-01T12:00:00Z"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Event.Timestamp != "2026-08-01T12:00:00Z" {
		t.Fatalf("expected payload timestamp, got %q", resp.Event.Timestamp)
	}
	if !strings.HasPrefix(resp.Event.ID, "user-u7-signup-") {
		t.Fatalf("unexpected event id %q", resp.Event.ID)
	}
}

func TestCreatePaymentEvent(t *testing.T) {
	svc, pub := newTestService()
	rec := doJSON(t, svc, "POST", "/api/events/payment",
		`{"payment_id": "p1", "user_id": "u7", "amount": 9.99, "status": "settled", "timestamp": "2026-08-01T12:00:00Z"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Event.ID, "payment-p1-settled-") {
		t.Fatalf("unexpected event id %q", resp.Event.ID)
	}
	msgs := pub.Messages("payment-events")
	if len(msgs) != 1 || msgs[0].Key != "u7" {
		t.Fatalf("expected payment keyed by user id, got %+v", msgs)
	}
}

func TestPublishFailureReturns500(t *testing.T) {
	svc, pub := newTestService()
	pub.FailWith(errors.New("broker down"))

	rec := doJSON(t, svc, "POST", "/api/events/movie",
		`{"movie_id": 1, "title": "Up", "action": "created"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to publish event") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestOffsetsIncrementPerTopic(t *testing.T) {
	svc, _ := newTestService()
	for want := int64(0); want < 3; want++ {
		rec := doJSON(t, svc, "POST", "/api/events/movie",
			`{"movie_id": 1, "title": "Up", "action": "created"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		var resp struct {
			Offset int64 `json:"offset"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Offset != want {
			t.Fatalf("expected offset %d, got %d", want, resp.Offset)
		}
	}
}
