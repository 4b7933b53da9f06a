package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drillbench/drillbench/internal/api"
	"github.com/drillbench/drillbench/internal/auth"
	"github.com/drillbench/drillbench/internal/challenge"
	"github.com/drillbench/drillbench/internal/config"
	"github.com/drillbench/drillbench/internal/executor"
	"github.com/drillbench/drillbench/internal/progress"
	"github.com/drillbench/drillbench/internal/session"
)

// In-memory stores backing the services under test.

type memChallengeStore struct {
	challenges map[string]challenge.Challenge
	testCases  map[string][]challenge.TestCase
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{
		challenges: make(map[string]challenge.Challenge),
		testCases:  make(map[string][]challenge.TestCase),
	}
}

func (s *memChallengeStore) Get(ctx context.Context, id string) (*challenge.Challenge, error) {
	ch, ok := s.challenges[id]
	if !ok {
		return nil, challenge.ErrNotFound
	}
	return &ch, nil
}

func (s *memChallengeStore) GetTestCases(ctx context.Context, id string) ([]challenge.TestCase, error) {
	if _, ok := s.challenges[id]; !ok {
		return nil, challenge.ErrNotFound
	}
	return s.testCases[id], nil
}

func (s *memChallengeStore) GetByTopic(ctx context.Context, topic string) ([]challenge.Challenge, error) {
	var out []challenge.Challenge
	for _, ch := range s.challenges {
		if strings.EqualFold(ch.Topic, topic) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memChallengeStore) ListTopics(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var topics []string
	for _, ch := range s.challenges {
		if !seen[ch.Topic] {
			seen[ch.Topic] = true
			topics = append(topics, ch.Topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *memChallengeStore) Save(ctx context.Context, ch *challenge.Challenge, testCases []challenge.TestCase) error {
	s.challenges[ch.ID] = *ch
	if testCases != nil {
		s.testCases[ch.ID] = testCases
	}
	return nil
}

type memSessionStore struct {
	sessions map[string]session.Session
}

func (s *memSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	results := make(map[string]session.QuestionResult, len(sess.Results))
	for k, v := range sess.Results {
		results[k] = v
	}
	sess.Results = results
	return &sess, nil
}

func (s *memSessionStore) Save(ctx context.Context, sess *session.Session) error {
	s.sessions[sess.ID] = *sess
	return nil
}

type memProblemStore struct {
	data map[string]progress.ProblemProgress
}

func (s *memProblemStore) Get(ctx context.Context, userID uuid.UUID, problemID string) (*progress.ProblemProgress, error) {
	p, ok := s.data[userID.String()+"/"+problemID]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return &p, nil
}

func (s *memProblemStore) Save(ctx context.Context, p *progress.ProblemProgress) error {
	s.data[p.UserID.String()+"/"+p.ProblemID] = *p
	return nil
}

type memTopicStore struct {
	data map[string]progress.TopicProgress
}

func (s *memTopicStore) Get(ctx context.Context, userID uuid.UUID, topic string) (*progress.TopicProgress, error) {
	tp, ok := s.data[userID.String()+"/"+strings.ToLower(topic)]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return &tp, nil
}

func (s *memTopicStore) Save(ctx context.Context, tp *progress.TopicProgress) error {
	s.data[tp.UserID.String()+"/"+strings.ToLower(tp.Topic)] = *tp
	return nil
}

type memAttemptStore struct {
	attempts []progress.ProblemAttempt
}

func (s *memAttemptStore) Append(ctx context.Context, a *progress.ProblemAttempt) error {
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *memAttemptStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]progress.ProblemAttempt, error) {
	var out []progress.ProblemAttempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAttemptStore) ListByProblem(ctx context.Context, userID uuid.UUID, problemID string, limit, offset int) ([]progress.ProblemAttempt, int, error) {
	var matched []progress.ProblemAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.ProblemID == problemID {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type memHistoryStore struct {
	data map[string]progress.SessionHistory
}

func (s *memHistoryStore) Get(ctx context.Context, userID uuid.UUID, sessionID string) (*progress.SessionHistory, error) {
	h, ok := s.data[userID.String()+"/"+sessionID]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return &h, nil
}

func (s *memHistoryStore) Save(ctx context.Context, h *progress.SessionHistory) error {
	s.data[h.UserID.String()+"/"+h.SessionID] = *h
	return nil
}

func (s *memHistoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]progress.SessionHistory, int, error) {
	var matched []progress.SessionHistory
	for _, h := range s.data {
		if h.UserID == userID {
			matched = append(matched, h)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// echoRunner grades by printing whatever the synthesized program would
// print for the first argument, so expected == first input passes.
type echoRunner struct{}

func (echoRunner) RunSnippet(ctx context.Context, source string) (string, string, error) {
	// The synthesized program ends with a print call; fake the
	// interpreter by echoing the first literal argument.
	lines := strings.Split(strings.TrimSpace(source), "\n")
	last := lines[len(lines)-1]
	start := strings.Index(last, "(")
	end := strings.LastIndex(last, ")")
	if start < 0 || end <= start {
		return "", "", nil
	}
	inner := last[start+1 : end]
	// print(add(1, 2)) -> inner "add(1, 2)"; echo first arg.
	if i := strings.Index(inner, "("); i >= 0 {
		inner = inner[i+1 : strings.LastIndex(inner, ")")]
	}
	first := strings.Split(inner, ",")[0]
	return strings.TrimSpace(first) + "\n", "", nil
}

type testEnv struct {
	server *httptest.Server
	auth   *auth.Service
	userID uuid.UUID
	token  string
	store  *memChallengeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemChallengeStore()
	challenges := challenge.NewService(store, nil)

	problems := &memProblemStore{data: make(map[string]progress.ProblemProgress)}
	topics := &memTopicStore{data: make(map[string]progress.TopicProgress)}
	history := &memHistoryStore{data: make(map[string]progress.SessionHistory)}
	attempts := &memAttemptStore{}
	tracker := progress.NewTracker(problems, topics, history, attempts, nil)
	analytics := progress.NewService(topics, attempts, history, nil)

	sessions := session.NewService(&memSessionStore{sessions: make(map[string]session.Session)}, challenges, tracker, nil)
	exec := executor.NewService(echoRunner{}, time.Second, nil)

	authSvc := auth.NewService("router-test-secret", time.Hour)
	userID := uuid.New()
	token, err := authSvc.IssueToken(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	app := &api.App{
		Config:     &config.Config{Debug: true},
		Auth:       authSvc,
		Challenges: challenges,
		Sessions:   sessions,
		Executor:   exec,
		Progress:   analytics,
	}

	server := httptest.NewServer(api.NewRouter(app))
	t.Cleanup(server.Close)

	return &testEnv{server: server, auth: authSvc, userID: userID, token: token, store: store}
}

func (e *testEnv) seedChallenge(t *testing.T, title, topic string, cases []challenge.TestCase) string {
	t.Helper()
	id := challenge.Slugify(title)
	e.store.challenges[id] = challenge.Challenge{
		ID:         id,
		Topic:      topic,
		Title:      title,
		Difficulty: challenge.DifficultyEasy,
	}
	e.store.testCases[id] = cases
	return id
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d; want 200", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "healthy" {
		t.Errorf("status = %q; want healthy", body["status"])
	}
}

func TestReady_NoCheckConfigured(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/ready", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /ready = %d; want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChallenges_GetAndTopics(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedChallenge(t, "Two Sum", "arrays", nil)
	env.seedChallenge(t, "Reverse List", "linked-lists", nil)

	resp := env.do(t, http.MethodGet, "/api/v1/challenges/"+id, nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET challenge = %d; want 200", resp.StatusCode)
	}
	ch := decode[challenge.Challenge](t, resp)
	if ch.Title != "Two Sum" {
		t.Errorf("title = %q; want Two Sum", ch.Title)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/challenges/topics", nil, false)
	topics := decode[[]string](t, resp)
	if len(topics) != 2 {
		t.Errorf("topics = %v; want 2 entries", topics)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/challenges/missing", nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing challenge = %d; want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/challenges/topic/graphs", nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET empty topic = %d; want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChallenges_CreateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	draft := challenge.Draft{Topic: "arrays", Title: "Max Subarray", Difficulty: challenge.DifficultyMedium}

	resp := env.do(t, http.MethodPost, "/api/v1/challenges", draft, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create = %d; want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/v1/challenges", draft, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("authenticated create = %d; want 201", resp.StatusCode)
	}
	ch := decode[challenge.Challenge](t, resp)
	if ch.ID != "max-subarray" {
		t.Errorf("id = %q; want max-subarray", ch.ID)
	}
}

func TestBulkUpload(t *testing.T) {
	env := newTestEnv(t)

	req := map[string]any{
		"challenges": []challenge.Draft{
			{Topic: "arrays", Title: "Good One", Difficulty: challenge.DifficultyEasy},
			{Topic: "arrays", Title: ""}, // invalid: no title
		},
	}

	resp := env.do(t, http.MethodPost, "/api/v1/admin/challenges/bulk-upload", req, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk upload = %d; want 200", resp.StatusCode)
	}
	result := decode[challenge.BulkResult](t, resp)
	if result.Successful != 1 || result.Failed != 1 {
		t.Errorf("bulk result = %+v; want 1 successful, 1 failed", result)
	}
}

func TestExecute(t *testing.T) {
	env := newTestEnv(t)
	// echoRunner prints the first argument, so expected == first input.
	id := env.seedChallenge(t, "Identity", "basics", []challenge.TestCase{
		{Input: []any{7}, Expected: 7},
		{Input: []any{42}, Expected: 42},
	})

	body := map[string]string{"code": "def identity(x):\n    return x", "challengeId": id}
	resp := env.do(t, http.MethodPost, "/api/v1/code/execute", body, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute = %d; want 200", resp.StatusCode)
	}
	result := decode[struct {
		Success   bool `json:"success"`
		AllPassed bool `json:"allPassed"`
		Results   struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
		} `json:"results"`
	}](t, resp)
	if !result.Success || !result.AllPassed {
		t.Errorf("result = %+v; want success and allPassed", result)
	}
	if result.Results.Total != 2 || result.Results.Passed != 2 {
		t.Errorf("results = %+v; want 2/2", result.Results)
	}
}

func TestExecute_Validation(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedChallenge(t, "Safe", "basics", []challenge.TestCase{{Input: []any{1}, Expected: 1}})
	ungraded := env.seedChallenge(t, "Ungraded", "basics", nil)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing code", map[string]string{"challengeId": id}, http.StatusBadRequest},
		{"missing challenge id", map[string]string{"code": "x = 1"}, http.StatusBadRequest},
		{"unknown challenge", map[string]string{"code": "x = 1", "challengeId": "nope"}, http.StatusNotFound},
		{"challenge without test cases", map[string]string{"code": "x = 1", "challengeId": ungraded}, http.StatusNotFound},
		{"denylisted code", map[string]string{"code": "import os\nx = 1", "challengeId": id}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/code/execute", tt.body, false)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d; want %d", resp.StatusCode, tt.want)
			}
			resp.Body.Close()
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedChallenge(t, "Alpha", "arrays", nil)
	env.seedChallenge(t, "Beta", "arrays", nil)

	// Create
	resp := env.do(t, http.MethodPost, "/api/v1/sessions", session.Config{Topic: "arrays", QuestionCount: 2}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session = %d; want 201", resp.StatusCode)
	}
	sess := decode[session.Session](t, resp)
	if len(sess.Challenges) != 2 || sess.Status != session.StatusActive {
		t.Fatalf("session = %+v; want 2 challenges, active", sess)
	}

	// Get
	resp = env.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID, nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session = %d; want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Pause
	resp = env.do(t, http.MethodPut, "/api/v1/sessions/"+sess.ID, map[string]string{"status": "paused"}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause session = %d; want 200", resp.StatusCode)
	}
	paused := decode[session.Session](t, resp)
	if paused.Status != session.StatusPaused {
		t.Errorf("status = %q; want paused", paused.Status)
	}

	// Complete the first question
	qID := sess.Challenges[0].ID
	result := session.QuestionResult{Status: session.ResultSuccess, Attempts: 1, TimeSpent: 30}
	resp = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/questions/%s/complete", sess.ID, qID), result, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete question = %d; want 200", resp.StatusCode)
	}
	updated := decode[session.Session](t, resp)
	if updated.Score != 3 || updated.CurrentQuestion != 1 {
		t.Errorf("session = score %d cursor %d; want 3 and 1", updated.Score, updated.CurrentQuestion)
	}

	// Progress fed by the completion
	resp = env.do(t, http.MethodGet, "/api/v1/sessions/progress/topics/arrays", nil, true)
	tp := decode[progress.TopicProgress](t, resp)
	if tp.TotalAttempts != 1 || tp.SuccessfulAttempts != 1 {
		t.Errorf("topic progress = %+v; want 1/1 attempts", tp)
	}

	// Heatmap sees the attempt
	resp = env.do(t, http.MethodGet, "/api/v1/sessions/activity/heatmap", nil, true)
	hm := decode[progress.Heatmap](t, resp)
	if hm.TotalProblems != 1 {
		t.Errorf("heatmap total = %d; want 1", hm.TotalProblems)
	}
}

func TestSession_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedChallenge(t, "Alpha", "arrays", nil)

	// Missing topic
	resp := env.do(t, http.MethodPost, "/api/v1/sessions", session.Config{QuestionCount: 2}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing topic = %d; want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Topic with no challenges
	resp = env.do(t, http.MethodPost, "/api/v1/sessions", session.Config{Topic: "graphs", QuestionCount: 2}, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty topic = %d; want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown session
	resp = env.do(t, http.MethodGet, "/api/v1/sessions/session-0", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session = %d; want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// Unauthenticated
	resp = env.do(t, http.MethodPost, "/api/v1/sessions", session.Config{Topic: "arrays", QuestionCount: 1}, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated create = %d; want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTopicProgress_ZeroedDefault(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/sessions/progress/topics/never-studied", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("topic progress = %d; want 200", resp.StatusCode)
	}
	tp := decode[progress.TopicProgress](t, resp)
	if tp.Topic != "never-studied" || tp.TotalAttempts != 0 {
		t.Errorf("topic progress = %+v; want zeroed aggregate", tp)
	}
}

func TestProblemHistory_Pagination(t *testing.T) {
	env := newTestEnv(t)
	env.seedChallenge(t, "Alpha", "arrays", nil)

	// Create a session and complete the same problem via separate sessions
	// is overkill here; exercise the endpoint with the empty log instead.
	resp := env.do(t, http.MethodGet, "/api/v1/sessions/progress/problems/alpha?page=1&limit=5", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("problem history = %d; want 200", resp.StatusCode)
	}
	page := decode[progress.AttemptPage](t, resp)
	if page.Total != 0 {
		t.Errorf("total = %d; want 0", page.Total)
	}
}
