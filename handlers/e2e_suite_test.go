package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/middleware"
	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/appenv"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/authtoken"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret-test-secret-test-secret"

type sentReset struct {
	email string
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, u *models.User, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentReset{email: u.Email, token: token})
	return nil
}

func (n *fakeNotifier) last() sentReset {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentReset{}
	}
	return n.sent[len(n.sent)-1]
}

type E2ETestSuite struct {
	suite.Suite
	server   *httptest.Server
	baseURL  string
	store    *repository.MemoryStore
	notifier *fakeNotifier
	hasher   *password.Hasher

	clockMu sync.Mutex
	now     time.Time
}

func (s *E2ETestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.hasher = password.NewHasher(password.MinCost)
}

func (s *E2ETestSuite) SetupTest() {
	s.now = time.Date(2023, 11, 5, 12, 0, 0, 0, time.UTC)
	s.store = repository.NewMemoryStore()
	s.notifier = &fakeNotifier{}

	tokens := authtoken.NewManager(testSecret, s.store, authtoken.WithClock(s.clock))
	router := NewRouter(Deps{
		Repos:    s.store.Repositories(),
		Tokens:   tokens,
		Hasher:   s.hasher,
		Notifier: s.notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		CORS:     middleware.CORSOptions{Env: appenv.Test},
		Now:      s.clock,
	})
	s.server = httptest.NewServer(router)
	s.baseURL = s.server.URL + "/api"
}

func (s *E2ETestSuite) TearDownTest() {
	s.server.Close()
}

func (s *E2ETestSuite) clock() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.now
}

func (s *E2ETestSuite) advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = s.now.Add(d)
}

type apiResult struct {
	status int
	raw    []byte
	body   map[string]interface{}
}

func (r apiResult) data() map[string]interface{} {
	d, _ := r.body["data"].(map[string]interface{})
	return d
}

func (r apiResult) errorCode() string {
	e, _ := r.body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func (s *E2ETestSuite) request(method, path, token string, body interface{}) apiResult {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	res := apiResult{status: resp.StatusCode, raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &res.body))
	}
	return res
}

// register creates an account and returns its session token.
func (s *E2ETestSuite) register(username, email, pw string) string {
	res := s.request(http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": email, "password": pw,
	})
	s.Require().Equal(http.StatusCreated, res.status, string(res.raw))
	token, _ := res.data()["token"].(string)
	s.Require().NotEmpty(token)
	return token
}

func (s *E2ETestSuite) login(identifier, pw string) apiResult {
	return s.request(http.MethodPost, "/login", "", map[string]string{"username": identifier, "password": pw})
}

func (s *E2ETestSuite) createRecord(token string, rec map[string]interface{}) int {
	res := s.request(http.MethodPost, "/records", token, rec)
	s.Require().Equal(http.StatusCreated, res.status, string(res.raw))
	id, _ := res.data()["id"].(float64)
	s.Require().NotZero(id)
	return int(id)
}

func (s *E2ETestSuite) listRecords(token string) []map[string]interface{} {
	res := s.request(http.MethodGet, "/records", token, nil)
	s.Require().Equal(http.StatusOK, res.status, string(res.raw))
	items, _ := res.body["data"].([]interface{})
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, it.(map[string]interface{}))
	}
	return out
}

func TestE2ETestSuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
