package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medquest/controllers"
	"medquest/internal/metrics"
	"medquest/internal/xpcache"
	"medquest/middlewares"
	"medquest/models"
	"medquest/services"
	"medquest/store"
	"medquest/structs"
	"medquest/websocket"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "router-test-secret"

type failingStore struct {
	store.Store
}

func (failingStore) RunTransaction(context.Context, func(store.Tx) error) error {
	return errors.New("mongo: server selection timeout")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type harness struct {
	router *gin.Engine
}

func newHarness(t *testing.T, s store.Store, limiter controllers.RateLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if s == nil {
		s = store.NewMemoryStore()
	}
	hub := websocket.NewHub(nil)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := services.NewXPService(services.XPServiceDeps{
		Store:        s,
		Cache:        xpcache.NewMemoryStatsCache(time.Minute),
		Publisher:    hub,
		Metrics:      m,
		RetryBackoff: -1,
	})
	router := NewRouter(RouterConfig{
		JWTSecret:    secret,
		AllowOrigins: []string{"http://localhost:5173"},
		Controller:   controllers.NewXPController(svc, limiter, nil),
		Hub:          hub,
		Metrics:      m,
	})
	return &harness{router: router}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := middlewares.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (h *harness) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestRecordActivityEndpoint(t *testing.T) {
	h := newHarness(t, nil, xpcache.NewMemoryRateLimiter(xpcache.DefaultRateLimitConfig()))
	tok := token(t, "u1", "")

	w := h.do(t, http.MethodPost, "/xp/activities", tok, structs.RecordActivityRequest{
		Track:        models.TrackQuestions,
		ActivityType: models.ActivityQuestionCorrect,
		Metadata:     models.ActivityMetadata{Difficulty: models.DifficultyHard},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.ActivityResult
	decode(t, w, &res)
	assert.Equal(t, 20, res.XPGained)
	assert.False(t, res.LeveledUp)
	require.NotNil(t, res.TrackLevel)
	assert.Equal(t, 20, res.TrackLevel.TotalXP)

	w = h.do(t, http.MethodGet, "/xp/levels/questions", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tl models.TrackLevel
	decode(t, w, &tl)
	assert.Equal(t, 95, tl.XPToNextLevel)

	w = h.do(t, http.MethodGet, "/xp/overall", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ol models.OverallLevel
	decode(t, w, &ol)
	assert.Equal(t, 20, ol.TotalXP)
	assert.Equal(t, 1, ol.OverallLevel)

	w = h.do(t, http.MethodGet, "/xp/activities?track=questions&limit=5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Activities []models.ActivityRecord `json:"activities"`
	}
	decode(t, w, &recent)
	require.Len(t, recent.Activities, 1)
	assert.Equal(t, "Answered a question correctly (hard)", recent.Activities[0].Description)

	w = h.do(t, http.MethodGet, "/xp/stats", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.UserStats
	decode(t, w, &stats)
	assert.True(t, stats.Available)
	assert.Equal(t, models.TrackQuestions, stats.Overall.FavoriteMethodology)
}

func TestRecordActivityEndpoint_Errors(t *testing.T) {
	h := newHarness(t, nil, nil)
	tok := token(t, "u1", "")

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "MissingFields", body: map[string]string{"track": "questions"}, want: http.StatusBadRequest},
		{name: "UnknownTrack", body: map[string]string{"track": "surgery", "activityType": "quiz_completed"}, want: http.StatusBadRequest},
		{name: "WrongTrack", body: map[string]string{"track": "flashcards", "activityType": "quiz_completed"}, want: http.StatusBadRequest},
		{name: "BadMetadata", body: map[string]interface{}{
			"track": "flashcards", "activityType": "card_mastered", "metadata": map[string]int{"reviewQuality": 9},
		}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/xp/activities", tok, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("Unauthenticated", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/xp/activities", "", map[string]string{"track": "questions", "activityType": "quiz_completed"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRecordActivityEndpoint_StoreDown(t *testing.T) {
	h := newHarness(t, failingStore{Store: store.NewMemoryStore()}, nil)

	w := h.do(t, http.MethodPost, "/xp/activities", token(t, "u1", ""), structs.RecordActivityRequest{
		Track:        models.TrackQuestions,
		ActivityType: models.ActivityQuizCompleted,
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Contains(t, body["details"], "activity recording failed")
}

func TestRecordActivityEndpoint_RateLimited(t *testing.T) {
	limiter := xpcache.NewMemoryRateLimiter(xpcache.RateLimitConfig{Max: 2, Window: time.Minute})
	h := newHarness(t, nil, limiter)
	tok := token(t, "u1", "")
	req := structs.RecordActivityRequest{Track: models.TrackFlashcards, ActivityType: models.ActivityCardReviewed}

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/xp/activities", tok, req).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/xp/activities", tok, req).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodPost, "/xp/activities", tok, req).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/xp/activities", token(t, "u2", ""), req).Code)
}

func TestRecordActivityEndpoint_LimiterFailureFailsOpen(t *testing.T) {
	h := newHarness(t, nil, brokenLimiter{})
	w := h.do(t, http.MethodPost, "/xp/activities", token(t, "u1", ""), structs.RecordActivityRequest{
		Track: models.TrackFlashcards, ActivityType: models.ActivityCardReviewed,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurveEndpoint(t *testing.T) {
	h := newHarness(t, nil, nil)
	tok := token(t, "u1", "")

	w := h.do(t, http.MethodGet, "/xp/curve/questions?level=3", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var curve structs.CurveResponse
	decode(t, w, &curve)
	assert.Equal(t, 132, curve.XPRequired)
	assert.Equal(t, 247, curve.TotalXP)
	assert.Equal(t, 50, curve.MaxLevel)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/xp/curve/questions?level=51", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/xp/curve/questions?level=x", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/xp/curve/surgery", tok, nil).Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := newHarness(t, nil, nil)
	for user, n := range map[string]int{"u1": 1, "u2": 3} {
		for i := 0; i < n; i++ {
			w := h.do(t, http.MethodPost, "/xp/activities", token(t, user, ""), structs.RecordActivityRequest{
				Track: models.TrackQuestions, ActivityType: models.ActivityQuizCompleted,
			})
			require.Equal(t, http.StatusOK, w.Code)
		}
	}

	w := h.do(t, http.MethodGet, "/xp/leaderboard?limit=5", token(t, "u1", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Leaderboard []structs.LeaderboardEntry `json:"leaderboard"`
	}
	decode(t, w, &body)
	require.Len(t, body.Leaderboard, 2)
	assert.Equal(t, "u2", body.Leaderboard[0].UserID)
	assert.Equal(t, 1, body.Leaderboard[0].Rank)
	assert.Equal(t, 90, body.Leaderboard[0].TotalXP)
	assert.True(t, body.Leaderboard[1].CurrentUser)
}

func TestAdminResetEndpoint(t *testing.T) {
	h := newHarness(t, nil, nil)
	w := h.do(t, http.MethodPost, "/xp/activities", token(t, "u1", ""), structs.RecordActivityRequest{
		Track: models.TrackQuestions, ActivityType: models.ActivityPerfectQuiz,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodDelete, "/admin/xp/u1/questions", token(t, "u1", "student"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodDelete, "/admin/xp/u1/questions", token(t, "root", middlewares.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res structs.ResetTrackResponse
	decode(t, w, &res)
	require.NotNil(t, res.OverallLevel)
	assert.Equal(t, 0, res.OverallLevel.TotalXP)

	w = h.do(t, http.MethodGet, "/xp/levels/questions", token(t, "u1", ""), nil)
	var tl models.TrackLevel
	decode(t, w, &tl)
	assert.Equal(t, 0, tl.TotalXP)

	w = h.do(t, http.MethodDelete, "/admin/xp/u1/surgery", token(t, "root", middlewares.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicEndpoints(t *testing.T) {
	h := newHarness(t, nil, nil)

	w := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "medquest_http_requests_in_flight")
}
