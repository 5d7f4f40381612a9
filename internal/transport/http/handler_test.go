package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-results-service/internal/app"
	"quiz-results-service/internal/domain"
	"quiz-results-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.AddUser(domain.User{ID: 1, DisplayName: "Alice", CreatedAt: base})
	store.AddUser(domain.User{ID: 2, DisplayName: "Bob", CreatedAt: base.Add(time.Minute)})
	store.AddQuestions(10, 11)

	verifier := memory.NewStaticTokenVerifier(map[string]int64{"token-1": 1, "token-2": 2})
	engine := app.NewLeaderboardEngine(store)
	service := app.NewResultService(verifier, store, store, engine)
	handler := NewHandler(service, store, engine)

	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func submitBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"categoryId":       3,
		"totalQuestions":   2,
		"correctAnswers":   1,
		"incorrectAnswers": 1,
		"score":            10,
		"questions": []map[string]any{
			{"id": 10, "isCorrect": true, "userAnswer": "Paris"},
			{"id": 11, "isCorrect": false, "userAnswer": "Lyon"},
		},
	})
	return body
}

func postQuiz(t *testing.T, server *httptest.Server, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/quizzes", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestSubmitQuizSuccess(t *testing.T) {
	server, store := newTestServer(t)

	resp := postQuiz(t, server, "token-1", submitBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		QuizID int64 `json:"quizId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.QuizID == 0 {
		t.Fatal("expected a quiz id")
	}
	if got := store.CountInteractions(out.QuizID); got != 2 {
		t.Fatalf("expected 2 interactions, got %d", got)
	}
}

func TestSubmitQuizRejectsMissingToken(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postQuiz(t, server, "", submitBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSubmitQuizRejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postQuiz(t, server, "token-1", []byte(`{"categoryId": "x"}`))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var out struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Error.Kind != string(domain.KindValidation) {
		t.Fatalf("expected validation kind, got %q", out.Error.Kind)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	postQuiz(t, server, "token-1", submitBody()).Body.Close()
	postQuiz(t, server, "token-2", submitBody()).Body.Close()

	resp, err := http.Get(server.URL + "/leaderboard?limit=1")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var lb domain.Leaderboard
	if err := json.NewDecoder(resp.Body).Decode(&lb); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 {
		t.Fatalf("expected limit to trim to 1 entry, got %d", len(lb.Entries))
	}
	// Equal scores: the earlier-created account wins the tie.
	if lb.Entries[0].UserID != 1 || lb.Entries[0].Rank != 1 {
		t.Fatalf("unexpected top entry: %+v", lb.Entries[0])
	}
}

func TestUserStatsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	postQuiz(t, server, "token-1", submitBody()).Body.Close()

	resp, err := http.Get(server.URL + "/users/1/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.PlayCount != 1 || user.Score != 10 {
		t.Fatalf("unexpected aggregates: %+v", user)
	}
}

func TestLeaderboardStream(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot is empty before any submissions.
	var initial domain.Leaderboard
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial.Entries)
	}

	postQuiz(t, server, "token-1", submitBody()).Body.Close()

	var update domain.Leaderboard
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(update.Entries) != 1 || update.Entries[0].UserID != 1 {
		t.Fatalf("unexpected update: %+v", update.Entries)
	}
}
