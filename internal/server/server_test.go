package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/models"
	"taskify/backend/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	gormlogger "gorm.io/gorm/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        "0",
			Environment: "test",
			LogLevel:    "error",
			CORSOrigins: []string{"*"},
		},
		Auth: config.AuthConfig{
			JWTSecret:  "server-test-secret-value",
			TokenTTL:   time.Hour,
			BCryptCost: 4,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  6000,
			BurstSize:       1000,
			CleanupInterval: time.Minute,
		},
		LoginThrottle: config.LoginThrottleConfig{
			Enabled:     true,
			MaxAttempts: 3,
			Window:      time.Minute,
		},
	}
}

type ServerTestSuite struct {
	suite.Suite
	clock  *clock
	pool   *database.DatabasePool
	mr     *miniredis.Miniredis
	jobs   *worker.JobQueue
	router *gin.Engine
}

func TestServerTestSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	t := s.T()
	s.clock = &clock{now: time.Now().UTC().Truncate(time.Second)}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     gormlogger.Silent,
	})
	s.Require().NoError(err)
	s.Require().NoError(pool.Migrate())
	t.Cleanup(func() { pool.Close() })
	s.pool = pool

	s.mr = miniredis.RunT(t)
	cc := cache.DefaultCacheConfig()
	cc.Addr = s.mr.Addr()
	client := cache.NewRedisClient(cc)
	t.Cleanup(func() { client.Close() })

	store := cache.NewRedisStore(client, nil)
	s.jobs = worker.NewJobQueue(store, 3, s.clock.Now)

	srv := New(testConfig(), Deps{
		DB:    pool,
		Redis: store,
		Jobs:  s.jobs,
		Now:   s.clock.Now,
	})
	s.router = srv.Router()
}

func (s *ServerTestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *ServerTestSuite) register(email, password string) string {
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   password,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	data := decode(s.T(), w)["data"].(map[string]interface{})
	return data["id"].(string)
}

func (s *ServerTestSuite) login(email, password string) string {
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return decode(s.T(), w)["token"].(string)
}

func (s *ServerTestSuite) createTask(token string, body map[string]interface{}) string {
	w := s.do(http.MethodPost, "/api/v1/tasks", token, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return decode(s.T(), w)["data"].(map[string]interface{})["id"].(string)
}

func (s *ServerTestSuite) assertUnauthorized(w *httptest.ResponseRecorder, reason string) {
	s.Equal(http.StatusUnauthorized, w.Code, w.Body.String())
	body := decode(s.T(), w)
	s.Equal(false, body["success"])
	s.Equal("unauthorized", body["error"])
	s.Equal(reason, body["reason"])
}

func (s *ServerTestSuite) TestRegisterLoginMe() {
	id := s.register("Jane@Example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	w := s.do(http.MethodGet, "/api/v1/users/me", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	data := decode(s.T(), w)["data"].(map[string]interface{})
	s.Equal(id, data["id"])
	s.Equal("jane@example.com", data["email"])
	s.Equal("user", data["role"])
	s.NotContains(data, "password")
	s.NotContains(data, "session_secret")
}

func (s *ServerTestSuite) TestRegister_DuplicateEmailConflicts() {
	s.register("jane@example.com", "secret1")

	w := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"first_name": "Other",
		"last_name":  "User",
		"email":      "JANE@example.com",
		"password":   "secret1",
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("conflict", decode(s.T(), w)["error"])
}

func (s *ServerTestSuite) TestRegister_ValidationMessage() {
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "not-an-email",
		"password":   "secret1",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	body := decode(s.T(), w)
	s.Equal("input_error", body["error"])
	s.Equal("email must be a valid email", body["message"])
}

func (s *ServerTestSuite) TestProtectedRoute_NoToken() {
	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/tasks", "", nil), "no_token")
}

func (s *ServerTestSuite) TestProtectedRoute_GarbageToken() {
	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/tasks", "not.a.token", nil), "invalid_token")
}

func (s *ServerTestSuite) TestProtectedRoute_ExpiredToken() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	s.clock.Advance(time.Hour)

	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/tasks", token, nil), "token_expired")
}

// A second login replaces the session: the first token stops working while
// the second one keeps working.
func (s *ServerTestSuite) TestSecondLoginExpiresFirstSession() {
	s.register("jane@example.com", "secret1")
	t1 := s.login("jane@example.com", "secret1")

	s.clock.Advance(time.Second)
	t2 := s.login("jane@example.com", "secret1")

	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/users/me", t1, nil), "session_expired")
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/users/me", t2, nil).Code)
}

func (s *ServerTestSuite) TestPasswordChangeInvalidatesOlderTokens() {
	id := s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	s.clock.Advance(2 * time.Second)

	w := s.do(http.MethodPatch, "/api/v1/users/"+id, token, map[string]string{"password": "secret2"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/users/me", token, nil), "password_changed")

	s.clock.Advance(time.Second)
	fresh := s.login("jane@example.com", "secret2")
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/users/me", fresh, nil).Code)
}

func (s *ServerTestSuite) TestLogoutEndsSession() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/auth/logout", token, nil).Code)
	s.assertUnauthorized(s.do(http.MethodGet, "/api/v1/users/me", token, nil), "session_expired")
}

func (s *ServerTestSuite) TestLogin_BadCredentialsAndThrottle() {
	s.register("jane@example.com", "secret1")

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "jane@example.com",
			"password": "wrong",
		})
		s.assertUnauthorized(w, "bad_credentials")
		s.Equal("Incorrect email or password", decode(s.T(), w)["message"])
	}

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "jane@example.com",
		"password": "secret1",
	})
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Equal("too_many_requests", decode(s.T(), w)["error"])
	s.NotEmpty(w.Header().Get("Retry-After"))

	s.mr.FastForward(time.Minute)
	s.login("jane@example.com", "secret1")
}

func (s *ServerTestSuite) TestUsers_ListRequiresAdmin() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	w := s.do(http.MethodGet, "/api/v1/users", token, nil)
	s.Equal(http.StatusForbidden, w.Code)

	s.Require().NoError(s.pool.DB.Model(&models.User{}).
		Where("email = ?", "jane@example.com").
		Update("role", models.RoleAdmin).Error)

	w = s.do(http.MethodGet, "/api/v1/users?page=1&limit=5", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := decode(s.T(), w)
	pagination := body["pagination"].(map[string]interface{})
	s.Equal(float64(1), pagination["totalDocs"])
	s.Equal(float64(5), pagination["limit"])
}

func (s *ServerTestSuite) TestUsers_CannotModifyOthers() {
	s.register("jane@example.com", "secret1")
	other := s.register("john@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	w := s.do(http.MethodPatch, "/api/v1/users/"+other, token, map[string]string{"first_name": "Hacked"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/users/"+other, token, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/users/not-a-uuid", token, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerTestSuite) TestTasks_CRUD() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	id := s.createTask(token, map[string]interface{}{
		"title":    "Write report",
		"priority": "HIGH",
	})

	w := s.do(http.MethodGet, "/api/v1/tasks/"+id, token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	data := decode(s.T(), w)["data"].(map[string]interface{})
	s.Equal("high", data["priority"])
	s.Equal("pending", data["status"])

	w = s.do(http.MethodPatch, "/api/v1/tasks/"+id, token, map[string]string{"status": "in_progress"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("in-progress", decode(s.T(), w)["data"].(map[string]interface{})["status"])

	w = s.do(http.MethodDelete, "/api/v1/tasks/"+id, token, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/tasks/"+id, token, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *ServerTestSuite) TestTasks_CreateValidation() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	w := s.do(http.MethodPost, "/api/v1/tasks", token, map[string]interface{}{"title": "ab", "priority": "low"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("title must be at least 3 characters", decode(s.T(), w)["message"])

	w = s.do(http.MethodPost, "/api/v1/tasks", token, map[string]interface{}{"title": "Valid", "priority": "urgent"})
	s.Equal(http.StatusBadRequest, w.Code)
}

// Filters never widen the owner scope: another user's matching tasks stay
// invisible, and foreign ids are forbidden.
func (s *ServerTestSuite) TestTasks_OwnerScopeSurvivesFilters() {
	s.register("a@example.com", "secret1")
	s.register("b@example.com", "secret1")
	tokenA := s.login("a@example.com", "secret1")
	tokenB := s.login("b@example.com", "secret1")

	s.createTask(tokenA, map[string]interface{}{"title": "Alpha high", "priority": "high"})
	foreign := s.createTask(tokenB, map[string]interface{}{"title": "Bravo high", "priority": "high"})
	s.createTask(tokenB, map[string]interface{}{"title": "Bravo high two", "priority": "high"})

	w := s.do(http.MethodGet, "/api/v1/tasks?priority=high&search=high", tokenA, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := decode(s.T(), w)
	tasks := body["data"].([]interface{})
	s.Len(tasks, 1)
	s.Equal("Alpha high", tasks[0].(map[string]interface{})["title"])
	s.Equal(float64(1), body["pagination"].(map[string]interface{})["totalDocs"])

	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/v1/tasks/"+foreign, tokenA, nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPatch, "/api/v1/tasks/"+foreign, tokenA, map[string]string{"title": "Mine now"}).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodDelete, "/api/v1/tasks/"+foreign, tokenA, nil).Code)
}

func (s *ServerTestSuite) TestTasks_ListPaginationAndSort() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	priorities := []string{"low", "high", "medium"}
	for i := 0; i < 12; i++ {
		s.createTask(token, map[string]interface{}{
			"title":    fmt.Sprintf("Task %02d", i),
			"priority": priorities[i%3],
		})
	}

	w := s.do(http.MethodGet, "/api/v1/tasks?page=2&limit=5&sort=priority&order=asc", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := decode(s.T(), w)

	pagination := body["pagination"].(map[string]interface{})
	s.Equal(float64(2), pagination["page"])
	s.Equal(float64(5), pagination["limit"])
	s.Equal(float64(12), pagination["totalDocs"])
	s.Equal(float64(3), pagination["totalPages"])

	// Page one holds the four lows and the first medium.
	tasks := body["data"].([]interface{})
	s.Require().Len(tasks, 5)
	s.Equal("medium", tasks[0].(map[string]interface{})["priority"])
	s.Equal("medium", tasks[2].(map[string]interface{})["priority"])
	s.Equal("high", tasks[3].(map[string]interface{})["priority"])

	w = s.do(http.MethodGet, "/api/v1/tasks?sort=title", token, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/tasks?status=archived", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(decode(s.T(), w)["data"])
}

func (s *ServerTestSuite) TestTasks_DueDateSchedulesReminder() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	due := s.clock.Now().Add(48 * time.Hour).Format(time.RFC3339)
	id := s.createTask(token, map[string]interface{}{
		"title":    "Pay rent",
		"priority": "medium",
		"due_date": due,
	})

	members, err := s.mr.ZMembers("taskify:jobs:scheduled")
	s.Require().NoError(err)
	s.Equal([]string{"task_reminder:" + id}, members)

	w := s.do(http.MethodPatch, "/api/v1/tasks/"+id, token, map[string]string{"status": "completed"})
	s.Require().Equal(http.StatusOK, w.Code)

	sizes, err := s.jobs.Sizes(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(0), sizes["scheduled"])
}

func (s *ServerTestSuite) TestTasks_ReopenedTaskGetsReminderBack() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	id := s.createTask(token, map[string]interface{}{
		"title":    "Renew passport",
		"priority": "high",
		"due_date": s.clock.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})

	w := s.do(http.MethodPatch, "/api/v1/tasks/"+id, token, map[string]string{"status": "completed"})
	s.Require().Equal(http.StatusOK, w.Code)
	sizes, err := s.jobs.Sizes(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(0), sizes["scheduled"])

	w = s.do(http.MethodPatch, "/api/v1/tasks/"+id, token, map[string]string{"status": "pending"})
	s.Require().Equal(http.StatusOK, w.Code)
	members, err := s.mr.ZMembers("taskify:jobs:scheduled")
	s.Require().NoError(err)
	s.Equal([]string{"task_reminder:" + id}, members)
}

func (s *ServerTestSuite) TestTasks_NullDueDateClearsReminder() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")

	id := s.createTask(token, map[string]interface{}{
		"title":    "Book dentist",
		"priority": "low",
		"due_date": s.clock.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})

	w := s.do(http.MethodPatch, "/api/v1/tasks/"+id, token, map[string]interface{}{"due_date": nil})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.NotContains(decode(s.T(), w)["data"], "due_date")

	sizes, err := s.jobs.Sizes(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(0), sizes["scheduled"])
}

func (s *ServerTestSuite) TestTasks_WritesSurviveRedisOutage() {
	s.register("jane@example.com", "secret1")
	token := s.login("jane@example.com", "secret1")
	s.mr.Close()

	due := s.clock.Now().Add(24 * time.Hour).Format(time.RFC3339)
	start := time.Now()
	for i := 0; i < 10; i++ {
		s.createTask(token, map[string]interface{}{
			"title":    fmt.Sprintf("Offline task %d", i),
			"priority": "low",
			"due_date": due,
		})
	}
	s.Less(time.Since(start), 5*time.Second)

	w := s.do(http.MethodGet, "/api/v1/tasks", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode(s.T(), w)["data"], 10)
}

func (s *ServerTestSuite) TestHealthAndMetrics() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	checks := decode(s.T(), w)["checks"].(map[string]interface{})
	s.Contains(checks, "database")
	s.Contains(checks, "redis")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/ready", "", nil).Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := decode(s.T(), w)
	s.Contains(body, "database")
	s.Contains(body, "jobs")

	s.mr.Close()
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/health/ready", "", nil).Code)
}

func (s *ServerTestSuite) TestUnknownRoute() {
	w := s.do(http.MethodGet, "/api/v1/nope", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", decode(s.T(), w)["error"])
}

func TestCORSConfig(t *testing.T) {
	all := corsConfig([]string{"*"})
	assert.True(t, all.AllowAllOrigins)
	assert.Empty(t, all.AllowOrigins)

	some := corsConfig([]string{"https://app.example.com"})
	assert.False(t, some.AllowAllOrigins)
	assert.Equal(t, []string{"https://app.example.com"}, some.AllowOrigins)
}

func TestRateLimitReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   database.DriverSQLite,
		DSN:      ":memory:",
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())
	t.Cleanup(func() { pool.Close() })

	cfg := testConfig()
	cfg.RateLimit.RequestsPerMin = 1
	cfg.RateLimit.BurstSize = 1

	router := New(cfg, Deps{DB: pool}).Router()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
