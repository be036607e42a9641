package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "FitTrack/pkg/errors"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// DateLayout is the wire and storage format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{Time: time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)}
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("cannot scan type %T into Date", value)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Workout is the GORM model for the workouts table.
type Workout struct {
	ID              int64     `gorm:"primaryKey;column:workout_id;autoIncrement" json:"workout_id"`
	UserID          int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	WorkoutType     string    `gorm:"column:workout_type;size:100;not null" json:"workout_type"`
	DurationMinutes int32     `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	Calories        *int32    `gorm:"column:calories" json:"calories"`
	WorkoutDate     Date      `gorm:"column:workout_date;type:date;not null" json:"workout_date"`
	Notes           *string   `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Workout) TableName() string {
	return "workouts"
}

// EventPayload is the broker representation of the workout.
func (w *Workout) EventPayload() map[string]any {
	payload := map[string]any{
		"workout_id":       w.ID,
		"user_id":          w.UserID,
		"workout_type":     w.WorkoutType,
		"duration_minutes": w.DurationMinutes,
		"workout_date":     w.WorkoutDate.String(),
		"calories":         nil,
		"notes":            nil,
	}
	if w.Calories != nil {
		payload["calories"] = *w.Calories
	}
	if w.Notes != nil {
		payload["notes"] = *w.Notes
	}
	return payload
}

// WorkoutRepo implements biz.WorkoutRepo on MySQL with a Redis cache of
// per-user workout lists.
type WorkoutRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *pkglog.LogHelper
}

// NewWorkoutRepo creates a workout repository.
func NewWorkoutRepo(data *Data, logger log.Logger) *WorkoutRepo {
	return &WorkoutRepo{
		db:     data.db,
		cache:  data.GetCache(),
		logger: pkglog.NewLogHelper(logger),
	}
}

// CreateWorkout inserts w and fills its ID.
func (r *WorkoutRepo) CreateWorkout(ctx context.Context, w *Workout) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return r.classify("create", w.ID, err)
	}
	r.logger.Database("workout created", "workout_id", w.ID, "user_id", w.UserID)
	r.invalidate(ctx, w.UserID)
	return nil
}

// GetWorkout loads one workout. A missing row is a *pkgerrors.DatabaseError of type not found.
func (r *WorkoutRepo) GetWorkout(ctx context.Context, id int64) (*Workout, error) {
	var w Workout
	if err := r.db.WithContext(ctx).Where("workout_id = ?", id).First(&w).Error; err != nil {
		return nil, r.classify("get", id, err)
	}
	return &w, nil
}

// ListWorkouts pages through all workouts ordered by id.
func (r *WorkoutRepo) ListWorkouts(ctx context.Context, limit, offset int) ([]*Workout, error) {
	workouts := make([]*Workout, 0, limit)
	if err := r.db.WithContext(ctx).
		Order("workout_id").
		Limit(limit).
		Offset(offset).
		Find(&workouts).Error; err != nil {
		return nil, r.classify("list", 0, err)
	}
	return workouts, nil
}

// ListWorkoutsByUser returns every workout of userID, served from cache when possible.
func (r *WorkoutRepo) ListWorkoutsByUser(ctx context.Context, userID int64) ([]*Workout, error) {
	key := userWorkoutsKey(userID)

	var cached []*Workout
	err := r.cache.Get(ctx, key, &cached)
	fill := false
	switch {
	case err == nil:
		r.logger.Cache("user workouts cache hit", "user_id", userID, "count", len(cached))
		return cached, nil
	case errors.Is(err, ErrCacheNotFound):
		r.logger.Cache("user workouts cache miss", "user_id", userID)
		fill = true
	case errors.Is(err, errCacheDisabled):
	default:
		r.logger.Warnw("msg", "cache read failed, falling back to database", "user_id", userID, "error", err)
	}

	// Read before the query: a write that invalidates the list while the
	// query runs bumps the version and the fill below is skipped.
	var version int64
	if fill {
		if version, err = r.cache.Version(ctx, key); err != nil {
			r.logger.Warnw("msg", "cache version read failed", "user_id", userID, "error", err)
			fill = false
		}
	}

	workouts := make([]*Workout, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("workout_date DESC, workout_id DESC").
		Find(&workouts).Error; err != nil {
		return nil, r.classify("list by user", userID, err)
	}

	if fill {
		err := r.cache.SetIfVersion(ctx, key, workouts, TTLUserWorkouts, version)
		switch {
		case err == nil:
		case errors.Is(err, ErrCacheStale):
			r.logger.Cache("user workouts changed while loading, not cached", "user_id", userID)
		default:
			r.logger.Warnw("msg", "failed to cache user workouts", "user_id", userID, "error", err)
		}
	}
	return workouts, nil
}

// UpdateWorkout writes every column of w. previousUserID is the owner before
// the update, so both owners' cached lists are dropped.
func (r *WorkoutRepo) UpdateWorkout(ctx context.Context, w *Workout, previousUserID int64) error {
	result := r.db.WithContext(ctx).
		Model(&Workout{}).
		Where("workout_id = ?", w.ID).
		Select("user_id", "workout_type", "duration_minutes", "calories", "workout_date", "notes", "updated_at").
		Updates(w)
	if result.Error != nil {
		return r.classify("update", w.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports 0 for an unchanged row as well, so confirm it still exists.
		if _, err := r.GetWorkout(ctx, w.ID); err != nil {
			return err
		}
	}

	r.logger.Database("workout updated", "workout_id", w.ID)
	r.invalidate(ctx, w.UserID, previousUserID)
	return nil
}

// DeleteWorkout removes w.
func (r *WorkoutRepo) DeleteWorkout(ctx context.Context, w *Workout) error {
	result := r.db.WithContext(ctx).Where("workout_id = ?", w.ID).Delete(&Workout{})
	if result.Error != nil {
		return r.classify("delete", w.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.classify("delete", w.ID, gorm.ErrRecordNotFound)
	}

	r.logger.Database("workout deleted", "workout_id", w.ID)
	r.invalidate(ctx, w.UserID)
	return nil
}

func (r *WorkoutRepo) invalidate(ctx context.Context, userIDs ...int64) {
	keys := make([]string, 0, len(userIDs))
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, userWorkoutsKey(id))
	}

	if err := r.cache.Invalidate(ctx, keys...); err != nil && !errors.Is(err, errCacheDisabled) {
		r.logger.Warnw("msg", "failed to invalidate user workouts cache", "keys", keys, "error", err)
	}
}

func (r *WorkoutRepo) classify(op string, id int64, err error) error {
	dbErr := pkgerrors.ClassifyDBError(err)

	switch dbErr.Type {
	case pkgerrors.ErrorTypeNotFound:
		r.logger.Database("workout not found", "op", op, "id", id)
	case pkgerrors.ErrorTypeDuplicateKey, pkgerrors.ErrorTypeConstraintViolation, pkgerrors.ErrorTypeInvalidValue:
		r.logger.Warnw("msg", "workout rejected by constraint", "op", op, "id", id, "error", dbErr.Error())
	case pkgerrors.ErrorTypeCanceled:
		r.logger.Warnw("msg", "workout statement canceled", "op", op, "id", id)
	default:
		r.logger.Errorw("msg", "workout persistence failed", "op", op, "id", id, "error", dbErr.Error())
	}

	return fmt.Errorf("%s workout: %w", op, dbErr)
}
