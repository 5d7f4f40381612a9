package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"quiz-results-service/internal/app"
	"quiz-results-service/internal/domain"
)

// SnapshotSource serves leaderboard reads (the store or the Redis cache).
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Leaderboard, error)
}

type Handler struct {
	service   *app.ResultService
	snapshots SnapshotSource
	engine    *app.LeaderboardEngine
	upgrader  websocket.Upgrader
}

func NewHandler(service *app.ResultService, snapshots SnapshotSource, engine *app.LeaderboardEngine) *Handler {
	return &Handler{
		service:   service,
		snapshots: snapshots,
		engine:    engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires the handler's routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quizzes", h.SubmitQuiz)
	mux.HandleFunc("GET /leaderboard", h.Leaderboard)
	mux.HandleFunc("GET /users/{userID}/stats", h.UserStats)
	mux.HandleFunc("GET /ws/leaderboard", h.ServeWS)
}

type submitResponse struct {
	QuizID int64 `json:"quizId"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SubmitQuiz records a completed quiz result for the bearer of the
// Authorization credential.
func (h *Handler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	credential := bearerToken(r)

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.ValidationError("request body must be a JSON object"))
		return
	}

	quizID, err := h.service.Submit(r.Context(), credential, r.Header.Get("Idempotency-Key"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{QuizID: quizID})
}

// Leaderboard returns the current snapshot; limit trims the entry list.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		writeError(w, domain.PersistenceError("leaderboard read", err))
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, domain.ValidationError("limit must be a non-negative integer"))
			return
		}
		if limit < len(lb.Entries) {
			lb.Entries = lb.Entries[:limit]
		}
	}
	writeJSON(w, http.StatusOK, lb)
}

// UserStats returns one user's cumulative aggregates.
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		writeError(w, domain.ValidationError("user id must be an integer"))
		return
	}
	user, err := h.service.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ServeWS streams committed leaderboard snapshots to the client, starting
// with the current one.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.engine.Subscribe()
	defer cancel()

	if lb, err := h.snapshots.Snapshot(r.Context()); err == nil {
		if err := conn.WriteJSON(lb); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(lb); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindPersistence
	}
	writeJSON(w, domain.StatusOf(err), errorResponse{Error: errorBody{
		Kind:    string(kind),
		Message: err.Error(),
	}})
}
