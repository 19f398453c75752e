package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"medquest/internal/logger"
	"medquest/internal/metrics"
	"medquest/leveling"
	"medquest/models"
	"medquest/stats"
	"medquest/store"

	"github.com/go-playground/validator/v10"
)

const (
	defaultMaxAttempts   = 5
	defaultHistoryLimit  = 1000
	defaultRetryBackoff  = 10 * time.Millisecond
	maxRetryBackoff      = 250 * time.Millisecond
	defaultRecentLimit   = 20
	defaultLeaderboardSz = 10
)

// StatsCache holds aggregated statistics between activity submissions.
//
// Invalidate advances a per-user generation. Set stores the stats only if the
// generation still equals the one read before they were built, and never for
// longer than maxTTL.
type StatsCache interface {
	Get(ctx context.Context, userID string) (*models.UserStats, bool, error)
	Generation(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, stats *models.UserStats, generation int64, maxTTL time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

// EventPublisher delivers gamification events to connected clients.
type EventPublisher interface {
	Publish(event models.GamificationEvent)
}

type XPServiceDeps struct {
	Store      store.Store
	Calculator *leveling.Calculator
	Cache      StatsCache
	Publisher  EventPublisher
	Metrics    *metrics.Metrics
	Logger     *logger.Logger

	// Clock defaults to time.Now and Location to UTC; Location decides
	// what a calendar day is for streaks.
	Clock    func() time.Time
	Location *time.Location

	MaxAttempts  int
	HistoryLimit int
	// RetryBackoff is the first delay between conflicting attempts; it
	// doubles per attempt. Negative disables the delay.
	RetryBackoff time.Duration
}

// XPService records activities and serves levels and statistics.
type XPService struct {
	store     store.Store
	calc      *leveling.Calculator
	cache     StatsCache
	publisher EventPublisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
	loc       *time.Location
	validate  *validator.Validate

	maxAttempts  int
	historyLimit int
	backoff      time.Duration
}

func NewXPService(deps XPServiceDeps) *XPService {
	s := &XPService{
		store:        deps.Store,
		calc:         deps.Calculator,
		cache:        deps.Cache,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		log:          deps.Logger,
		now:          deps.Clock,
		loc:          deps.Location,
		validate:     newValidator(),
		maxAttempts:  deps.MaxAttempts,
		historyLimit: deps.HistoryLimit,
		backoff:      deps.RetryBackoff,
	}
	if s.calc == nil {
		s.calc = leveling.New(nil)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.log = s.log.With("component", "xp")
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.historyLimit < 1 {
		s.historyLimit = defaultHistoryLimit
	}
	if s.backoff < 0 {
		s.backoff = 0
	} else if deps.RetryBackoff == 0 {
		s.backoff = defaultRetryBackoff
	}
	return s
}

func (s *XPService) Calculator() *leveling.Calculator {
	return s.calc
}

// recordOutcome is filled by the transaction body; every attempt overwrites it.
type recordOutcome struct {
	record       models.ActivityRecord
	trackLevel   models.TrackLevel
	overall      models.OverallLevel
	leveledUp    bool
	overallLevUp bool
}

// RecordActivity awards XP for one activity and updates the user's track and
// overall levels in a single transaction. Conflicting concurrent updates are
// retried with the same inputs; any terminal failure wraps
// ErrActivityRecordingFailed and leaves no partial state behind.
func (s *XPService) RecordActivity(ctx context.Context, userID string, track models.Track, activity models.ActivityType, meta models.ActivityMetadata) (*models.ActivityResult, error) {
	if err := s.validateActivity(userID, track, activity, meta); err != nil {
		return nil, err
	}
	xp, err := s.calc.CalculateAward(track, activity, meta)
	if err != nil {
		return nil, &ValidationError{Field: "activityType", Reason: err.Error(), Err: err}
	}
	now := s.now()
	record := models.ActivityRecord{
		UserID:       userID,
		Track:        track,
		ActivityType: activity,
		XPGained:     xp,
		Description:  leveling.Describe(track, activity, meta),
		Metadata:     meta,
		CreatedAt:    now,
	}

	var out recordOutcome
	err = s.withRetry(ctx, "record_activity", func(tx store.Tx) error {
		o, err := s.applyActivity(tx, record, now)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		s.metrics.Failure()
		s.log.Error("activity recording failed",
			"userId", userID, "track", track, "activityType", activity, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrActivityRecordingFailed, err)
	}

	s.afterRecord(ctx, out)

	result := &models.ActivityResult{
		XPGained:       xp,
		LeveledUp:      out.leveledUp,
		OverallLevelUp: out.overallLevUp,
		TrackLevel:     &out.trackLevel,
		OverallLevel:   &out.overall,
	}
	if out.leveledUp {
		lvl := out.trackLevel.CurrentLevel
		result.NewLevel = &lvl
	}
	return result, nil
}

func (s *XPService) applyActivity(tx store.Tx, record models.ActivityRecord, now time.Time) (recordOutcome, error) {
	var out recordOutcome

	id, err := tx.Append(store.CollectionActivityLog, record)
	if err != nil {
		return out, err
	}
	record.ID = id
	out.record = record

	tl, _, err := s.loadTrackLevel(tx, record.UserID, record.Track, now)
	if err != nil {
		return out, err
	}
	oldLevel := tl.CurrentLevel
	tl.TotalXP += record.XPGained
	progress := s.calc.LevelFromTotalXP(tl.TotalXP, record.Track)
	tl.CurrentLevel = progress.Level
	tl.CurrentXP = progress.CurrentXP
	tl.XPToNextLevel = progress.XPToNextLevel
	tl.UpdatedAt = now
	if tl.CurrentLevel > oldLevel {
		out.leveledUp = true
		levelUpAt := now
		tl.LastLevelUp = &levelUpAt
	}
	if err := tx.Set(store.CollectionTrackLevels, tl.ID, tl); err != nil {
		return out, err
	}
	out.trackLevel = tl

	overall, _, err := s.loadOverallLevel(tx, record.UserID, now)
	if err != nil {
		return out, err
	}
	oldOverall := overall.OverallLevel
	overall.TrackLevels[record.Track] = tl.CurrentLevel
	overall.TotalXP += record.XPGained
	overall.OverallLevel = overall.MeanLevel()
	overall.UpdatedAt = now
	out.overallLevUp = overall.OverallLevel > oldOverall
	if err := tx.Set(store.CollectionOverallLevels, overall.ID, overall); err != nil {
		return out, err
	}
	out.overall = overall
	return out, nil
}

// afterRecord runs the post-commit side effects. None of them can undo or
// fail the recorded activity.
func (s *XPService) afterRecord(ctx context.Context, out recordOutcome) {
	rec := out.record
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, rec.UserID); err != nil {
			s.log.Warn("stats cache invalidation failed", "userId", rec.UserID, "error", err)
		}
	}

	s.metrics.ActivityRecorded(string(rec.Track), string(rec.ActivityType), rec.XPGained)
	if out.leveledUp {
		s.metrics.LevelUp(string(rec.Track))
	}
	if out.overallLevUp {
		s.metrics.LevelUp("overall")
	}

	s.log.Info("activity recorded",
		"userId", rec.UserID,
		"track", rec.Track,
		"activityType", rec.ActivityType,
		"xpGained", rec.XPGained,
		"level", out.trackLevel.CurrentLevel,
		"overallLevel", out.overall.OverallLevel,
	)

	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.GamificationEvent{
		Type:         models.EventXPGained,
		UserID:       rec.UserID,
		Track:        rec.Track,
		ActivityType: rec.ActivityType,
		XPGained:     rec.XPGained,
		Timestamp:    rec.CreatedAt,
	})
	if out.leveledUp {
		s.publisher.Publish(models.GamificationEvent{
			Type:      models.EventLevelUp,
			UserID:    rec.UserID,
			Track:     rec.Track,
			NewLevel:  out.trackLevel.CurrentLevel,
			Timestamp: rec.CreatedAt,
		})
	}
	if out.overallLevUp {
		s.publisher.Publish(models.GamificationEvent{
			Type:         models.EventOverallLevelUp,
			UserID:       rec.UserID,
			OverallLevel: out.overall.OverallLevel,
			Timestamp:    rec.CreatedAt,
		})
	}
}

// withRetry reruns fn in a fresh transaction while the store reports a
// conflict, up to maxAttempts. Other errors end the loop immediately.
func (s *XPService) withRetry(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.store.RunTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		s.metrics.Retry()
		s.log.Debug("transaction conflict, retrying", "op", op, "attempt", attempt)
		if werr := sleepCtx(ctx, s.retryDelay(attempt)); werr != nil {
			return fmt.Errorf("%w (after conflict: %v)", werr, err)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", s.maxAttempts, err)
}

func (s *XPService) retryDelay(attempt int) time.Duration {
	if s.backoff <= 0 {
		return 0
	}
	d := s.backoff << (attempt - 1)
	if d > maxRetryBackoff || d <= 0 {
		d = maxRetryBackoff
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *XPService) defaultTrackLevel(userID string, track models.Track, now time.Time) models.TrackLevel {
	p := s.calc.LevelFromTotalXP(0, track)
	return models.TrackLevel{
		ID:            models.TrackLevelID(userID, track),
		UserID:        userID,
		Track:         track,
		CurrentLevel:  p.Level,
		CurrentXP:     p.CurrentXP,
		XPToNextLevel: p.XPToNextLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func defaultOverallLevel(userID string, now time.Time) models.OverallLevel {
	levels := make(map[models.Track]int, len(models.AllTracks()))
	for _, t := range models.AllTracks() {
		levels[t] = 1
	}
	return models.OverallLevel{
		ID:           userID,
		UserID:       userID,
		OverallLevel: 1,
		TrackLevels:  levels,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// getter reads one document, either inside a transaction or straight from the store.
type getter func(collection, id string, out interface{}) (bool, error)

func (s *XPService) readTrackLevel(get getter, userID string, track models.Track, now time.Time) (models.TrackLevel, bool, error) {
	var tl models.TrackLevel
	found, err := get(store.CollectionTrackLevels, models.TrackLevelID(userID, track), &tl)
	if err != nil {
		return tl, false, err
	}
	if !found {
		return s.defaultTrackLevel(userID, track, now), false, nil
	}
	return tl, true, nil
}

func readOverallLevel(get getter, userID string, now time.Time) (models.OverallLevel, bool, error) {
	var ol models.OverallLevel
	found, err := get(store.CollectionOverallLevels, userID, &ol)
	if err != nil {
		return ol, false, err
	}
	if !found {
		return defaultOverallLevel(userID, now), false, nil
	}
	if ol.TrackLevels == nil {
		ol.TrackLevels = make(map[models.Track]int)
	}
	for _, t := range models.AllTracks() {
		if ol.TrackLevels[t] < 1 {
			ol.TrackLevels[t] = 1
		}
	}
	return ol, true, nil
}

func (s *XPService) loadTrackLevel(tx store.Tx, userID string, track models.Track, now time.Time) (models.TrackLevel, bool, error) {
	return s.readTrackLevel(tx.Get, userID, track, now)
}

func (s *XPService) loadOverallLevel(tx store.Tx, userID string, now time.Time) (models.OverallLevel, bool, error) {
	return readOverallLevel(tx.Get, userID, now)
}

func (s *XPService) storeGetter(ctx context.Context) getter {
	return func(collection, id string, out interface{}) (bool, error) {
		return s.store.Get(ctx, collection, id, out)
	}
}

// GetTrackLevel returns the stored track level, or an unsaved level 1 default.
func (s *XPService) GetTrackLevel(ctx context.Context, userID string, track models.Track) (*models.TrackLevel, error) {
	if !track.Valid() {
		return nil, &ValidationError{Field: "track", Reason: fmt.Sprintf("unknown track %q", track)}
	}
	tl, _, err := s.readTrackLevel(s.storeGetter(ctx), userID, track, s.now())
	if err != nil {
		return nil, fmt.Errorf("get track level: %w", err)
	}
	return &tl, nil
}

// GetOverallLevel returns the stored overall level, or an unsaved default
// with every track at level 1.
func (s *XPService) GetOverallLevel(ctx context.Context, userID string) (*models.OverallLevel, error) {
	ol, _, err := readOverallLevel(s.storeGetter(ctx), userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("get overall level: %w", err)
	}
	return &ol, nil
}

// XPRequiredForLevel is the cost of reaching level from level-1.
func (s *XPService) XPRequiredForLevel(level int, track models.Track) int {
	return s.calc.XPRequiredForLevel(level, track)
}

// GetUserStats aggregates the user's levels and activity history. Read
// failures degrade to a result with Available set to false.
func (s *XPService) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.log.Warn("stats cache read failed", "userId", userID, "error", err)
		} else if ok {
			return cached, nil
		}
		// read before the store so a concurrent activity makes the fill a no-op
		generation, err = s.cache.Generation(ctx, userID)
		if err != nil {
			s.log.Warn("stats cache generation read failed", "userId", userID, "error", err)
		} else {
			cacheable = true
		}
	}

	now := s.now()
	result, err := s.buildStats(ctx, userID, now)
	if err != nil {
		s.log.Error("stats unavailable", "userId", userID, "error", err)
		return &models.UserStats{
			UserID:      userID,
			Available:   false,
			Tracks:      map[models.Track]models.TrackStats{},
			GeneratedAt: now,
		}, nil
	}

	if cacheable {
		// streaks roll over at local midnight
		if err := s.cache.Set(ctx, &result, generation, stats.UntilNextDay(now, s.loc)); err != nil {
			s.log.Warn("stats cache write failed", "userId", userID, "error", err)
		}
	}
	return &result, nil
}

func (s *XPService) buildStats(ctx context.Context, userID string, now time.Time) (models.UserStats, error) {
	get := s.storeGetter(ctx)
	levels := make(map[models.Track]models.TrackLevel, len(models.AllTracks()))
	for _, t := range models.AllTracks() {
		tl, _, err := s.readTrackLevel(get, userID, t, now)
		if err != nil {
			return models.UserStats{}, err
		}
		levels[t] = tl
	}
	overall, _, err := readOverallLevel(get, userID, now)
	if err != nil {
		return models.UserStats{}, err
	}
	// each track gets its own window so a busy track cannot crowd out the others
	var records []models.ActivityRecord
	for _, t := range models.AllTracks() {
		track := t
		recs, err := s.history(ctx, userID, &track, int64(s.historyLimit))
		if err != nil {
			return models.UserStats{}, err
		}
		records = append(records, recs...)
	}
	return stats.Aggregate(userID, levels, overall, records, now, s.loc), nil
}

// history returns the user's newest activities, restricted to track when set.
func (s *XPService) history(ctx context.Context, userID string, track *models.Track, limit int64) ([]models.ActivityRecord, error) {
	q := store.Query{
		Collection: store.CollectionActivityLog,
		Field:      "userId",
		Value:      userID,
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	}
	if track != nil {
		q.Where = map[string]interface{}{"track": string(*track)}
	}
	var records []models.ActivityRecord
	err := s.store.Query(ctx, q, &records)
	return records, err
}

// RecentActivities lists the user's newest activities, optionally restricted
// to one track.
func (s *XPService) RecentActivities(ctx context.Context, userID string, track *models.Track, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > s.historyLimit {
		limit = s.historyLimit
	}
	if track != nil && !track.Valid() {
		return nil, &ValidationError{Field: "track", Reason: fmt.Sprintf("unknown track %q", *track)}
	}
	records, err := s.history(ctx, userID, track, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	return records, nil
}

// Leaderboard returns the overall levels with the most XP first.
func (s *XPService) Leaderboard(ctx context.Context, limit int) ([]models.OverallLevel, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSz
	}
	var levels []models.OverallLevel
	err := s.store.Query(ctx, store.Query{
		Collection: store.CollectionOverallLevels,
		OrderBy:    "totalXP",
		Descending: true,
		Limit:      int64(limit),
	}, &levels)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	// ties keep a stable order across backends
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].TotalXP != levels[j].TotalXP {
			return levels[i].TotalXP > levels[j].TotalXP
		}
		return levels[i].UserID < levels[j].UserID
	})
	return levels, nil
}

// ResetTrack drops a user's progress on one track. The activity log is kept;
// the overall total loses that track's XP and the overall level is derived
// again from the snapshot.
func (s *XPService) ResetTrack(ctx context.Context, userID string, track models.Track) (*models.OverallLevel, error) {
	if !track.Valid() {
		return nil, &ValidationError{Field: "track", Reason: fmt.Sprintf("unknown track %q", track)}
	}
	now := s.now()

	var overall models.OverallLevel
	err := s.withRetry(ctx, "reset_track", func(tx store.Tx) error {
		tl, found, err := s.loadTrackLevel(tx, userID, track, now)
		if err != nil {
			return err
		}
		ol, olFound, err := s.loadOverallLevel(tx, userID, now)
		if err != nil {
			return err
		}
		if found {
			if err := tx.Delete(store.CollectionTrackLevels, tl.ID); err != nil {
				return err
			}
			ol.TotalXP -= tl.TotalXP
			if ol.TotalXP < 0 {
				ol.TotalXP = 0
			}
		}
		ol.TrackLevels[track] = 1
		ol.OverallLevel = ol.MeanLevel()
		ol.UpdatedAt = now
		if found || olFound {
			if err := tx.Set(store.CollectionOverallLevels, ol.ID, ol); err != nil {
				return err
			}
		}
		overall = ol
		return nil
	})
	if err != nil {
		s.log.Error("track reset failed", "userId", userID, "track", track, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrResetFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.log.Warn("stats cache invalidation failed", "userId", userID, "error", err)
		}
	}
	s.log.Info("track reset", "userId", userID, "track", track, "overallLevel", overall.OverallLevel)
	return &overall, nil
}
