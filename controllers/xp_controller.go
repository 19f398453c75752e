package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"medquest/internal/logger"
	"medquest/models"
	"medquest/services"
	"medquest/structs"

	"github.com/gin-gonic/gin"
)

const (
	requestTimeout = 5 * time.Second
	// recording must outlive a dropped client; the service retries internally
	recordTimeout = 15 * time.Second
)

// RateLimiter caps activity submissions per user.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type XPController struct {
	service *services.XPService
	limiter RateLimiter
	log     *logger.Logger
}

func NewXPController(service *services.XPService, limiter RateLimiter, log *logger.Logger) *XPController {
	if log == nil {
		log = logger.NewNop()
	}
	return &XPController{service: service, limiter: limiter, log: log.With("component", "http")}
}

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", false
	}
	return userID, true
}

func (x *XPController) respondError(c *gin.Context, err error) {
	switch {
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, services.ErrActivityRecordingFailed), errors.Is(err, services.ErrResetFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not save progress, please retry", "details": err.Error()})
	default:
		x.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func parseTrack(c *gin.Context, raw string) (models.Track, bool) {
	track, err := models.ParseTrack(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid track", "details": err.Error()})
		return "", false
	}
	return track, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return n, true
}

// RecordActivity handles POST /xp/activities
func (x *XPController) RecordActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req structs.RecordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if x.limiter != nil {
		allowed, err := x.limiter.Allow(c.Request.Context(), userID)
		if err != nil {
			// fail open; losing the limiter must not block learning
			x.log.Warn("rate limiter unavailable", "userId", userID, "error", err)
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many activity submissions, slow down"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	result, err := x.service.RecordActivity(ctx, userID, req.Track, req.ActivityType, req.Metadata)
	if err != nil {
		x.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecentActivities handles GET /xp/activities?track=&limit=
func (x *XPController) RecentActivities(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	var track *models.Track
	if raw := c.Query("track"); raw != "" {
		t, ok := parseTrack(c, raw)
		if !ok {
			return
		}
		track = &t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	records, err := x.service.RecentActivities(ctx, userID, track, limit)
	if err != nil {
		x.respondError(c, err)
		return
	}
	if records == nil {
		records = []models.ActivityRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": records})
}

// GetTrackLevel handles GET /xp/levels/:track
func (x *XPController) GetTrackLevel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	track, ok := parseTrack(c, c.Param("track"))
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	level, err := x.service.GetTrackLevel(ctx, userID, track)
	if err != nil {
		x.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

// GetOverallLevel handles GET /xp/overall
func (x *XPController) GetOverallLevel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	level, err := x.service.GetOverallLevel(ctx, userID)
	if err != nil {
		x.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

// GetUserStats handles GET /xp/stats. Unavailable stats are still a 200 with
// available=false.
func (x *XPController) GetUserStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	stats, err := x.service.GetUserStats(ctx, userID)
	if err != nil {
		x.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetCurve handles GET /xp/curve/:track?level=N
func (x *XPController) GetCurve(c *gin.Context) {
	track, ok := parseTrack(c, c.Param("track"))
	if !ok {
		return
	}
	level, ok := queryInt(c, "level", 2)
	if !ok {
		return
	}
	calc := x.service.Calculator()
	if level < 1 || level > calc.MaxLevel() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid level", "details": "level must be between 1 and " + strconv.Itoa(calc.MaxLevel())})
		return
	}
	c.JSON(http.StatusOK, structs.CurveResponse{
		Track:      track,
		Level:      level,
		XPRequired: x.service.XPRequiredForLevel(level, track),
		TotalXP:    calc.TotalXPForLevel(level, track),
		MaxLevel:   calc.MaxLevel(),
	})
}

// GetLeaderboard handles GET /xp/leaderboard?limit=
func (x *XPController) GetLeaderboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	if limit > 100 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	levels, err := x.service.Leaderboard(ctx, limit)
	if err != nil {
		x.respondError(c, err)
		return
	}

	entries := make([]structs.LeaderboardEntry, 0, len(levels))
	for i, l := range levels {
		entries = append(entries, structs.LeaderboardEntry{
			Rank:         i + 1,
			UserID:       l.UserID,
			OverallLevel: l.OverallLevel,
			TotalXP:      l.TotalXP,
			TrackLevels:  l.TrackLevels,
			CurrentUser:  l.UserID == userID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// ResetTrack handles DELETE /admin/xp/:userId/:track
func (x *XPController) ResetTrack(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	target := c.Param("userId")
	track, ok := parseTrack(c, c.Param("track"))
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	overall, err := x.service.ResetTrack(ctx, target, track)
	if err != nil {
		x.respondError(c, err)
		return
	}
	x.log.Info("admin reset track", "adminId", adminID, "userId", target, "track", track)
	c.JSON(http.StatusOK, structs.ResetTrackResponse{Message: "Track progress reset", OverallLevel: overall})
}
