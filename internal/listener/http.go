// Package listener accepts raw game-state snapshots, over HTTP in the
// game-state-integration push style or from a Kafka topic, flattens them,
// and hands them to the pipeline.
package listener

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hypecast/caster/internal/deliver"
	"github.com/hypecast/caster/internal/domain"
)

// maxSnapshotBytes bounds one pushed payload.
const maxSnapshotBytes = 1 << 20

// NewRouter builds the ingest chi.Router.
func NewRouter(token string, out chan<- domain.Snapshot, hub *deliver.Hub, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("ingest request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"subscribers":%d,"streams":%d}`, hub.SubscriberCount(), hub.StreamCount())
	})

	r.Post("/ingest", IngestHandler(token, out, logger))

	return r
}

// IngestHandler accepts one pushed snapshot. The game client includes its
// shared token inside the payload under auth.token; a mismatch is rejected
// before anything reaches the pipeline.
func IngestHandler(token string, out chan<- domain.Snapshot, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes))
		if err != nil {
			http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			// a bad payload never disturbs the current baseline
			logger.Warn("malformed snapshot skipped",
				"error", domain.ErrMalformedSnapshot("unparseable ingest payload", err), "remote", r.RemoteAddr)
			http.Error(w, `{"error":"malformed snapshot"}`, http.StatusBadRequest)
			return
		}

		if !authorized(raw, token) {
			logger.Warn("snapshot with bad token rejected", "remote", r.RemoteAddr)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		delete(raw, "auth")

		snap := domain.NewSnapshot(time.Now(), raw)
		select {
		case out <- *snap:
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"accepted"}`))
		case <-r.Context().Done():
			http.Error(w, `{"error":"cancelled"}`, http.StatusServiceUnavailable)
		}
	}
}

func authorized(raw map[string]any, token string) bool {
	if token == "" {
		return true
	}
	auth, ok := raw["auth"].(map[string]any)
	if !ok {
		return false
	}
	got, ok := auth["token"].(string)
	return ok && got == token
}
