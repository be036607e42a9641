package biz

import (
	"context"
	"time"
	"unicode/utf8"

	"FitTrack/internal/conf"
	"FitTrack/internal/data"
	"FitTrack/internal/model"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Field bounds of a workout.
const (
	MinWorkoutTypeLen  = 2
	MaxWorkoutTypeLen  = 100
	MaxNotesLen        = 500
	MinDurationMinutes = 1
	MaxDurationMinutes = 1000
	MaxCalories        = 100000

	DefaultListLimit = 10
	MaxListLimit     = 1000
)

// WorkoutInput is a complete workout as supplied by POST and PUT.
type WorkoutInput struct {
	UserID          int64
	WorkoutType     string
	DurationMinutes int32
	Calories        *int32
	WorkoutDate     data.Date
	Notes           *string
}

// WorkoutPatch holds the fields a PATCH may change. Nil fields are left as they are.
// The owner of a workout cannot be changed by a patch.
type WorkoutPatch struct {
	WorkoutType     *string
	DurationMinutes *int32
	Calories        *int32
	WorkoutDate     *data.Date
	Notes           *string
}

// WorkoutUsecase implements the workout write and read paths. Every write
// confirms the owner with the owner dependency, then commits, then publishes.
type WorkoutUsecase struct {
	repo      WorkoutRepo
	deps      DependencyChecker
	publisher data.EventPublisher
	owner     string
	logger    *pkglog.LogHelper
}

// NewWorkoutUsecase creates a workout usecase.
func NewWorkoutUsecase(repo WorkoutRepo, deps DependencyChecker, publisher data.EventPublisher, c *conf.Workouts, logger log.Logger) *WorkoutUsecase {
	return &WorkoutUsecase{
		repo:      repo,
		deps:      deps,
		publisher: publisher,
		owner:     c.OwnerDependency,
		logger:    pkglog.NewLogHelper(logger),
	}
}

// CreateWorkout stores a workout for an existing user and publishes workout.created.
func (uc *WorkoutUsecase) CreateWorkout(ctx context.Context, in *WorkoutInput) (*data.Workout, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := uc.checkOwner(ctx, in.UserID); err != nil {
		return nil, err
	}

	w := &data.Workout{}
	in.applyTo(w)
	if err := uc.repo.CreateWorkout(ctx, w); err != nil {
		return nil, persistenceError("create", 0, err)
	}

	uc.logger.Success("workout created", "workout_id", w.ID, "user_id", w.UserID)
	uc.publish(ctx, model.EventWorkoutCreated, w)
	return w, nil
}

// GetWorkout returns one workout.
func (uc *WorkoutUsecase) GetWorkout(ctx context.Context, id int64) (*data.Workout, error) {
	w, err := uc.repo.GetWorkout(ctx, id)
	if err != nil {
		return nil, persistenceError("get", id, err)
	}
	return w, nil
}

// ListWorkouts pages through all workouts. A zero limit selects DefaultListLimit.
func (uc *WorkoutUsecase) ListWorkouts(ctx context.Context, limit, offset int) ([]*data.Workout, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 || limit > MaxListLimit {
		return nil, invalidArgument("limit must be between 1 and %d", MaxListLimit)
	}
	if offset < 0 {
		return nil, invalidArgument("offset must be >= 0")
	}

	workouts, err := uc.repo.ListWorkouts(ctx, limit, offset)
	if err != nil {
		return nil, persistenceError("list", 0, err)
	}
	return workouts, nil
}

// ReplaceWorkout overwrites every field of workout id. The new owner is
// confirmed only when it differs from the current one.
func (uc *WorkoutUsecase) ReplaceWorkout(ctx context.Context, id int64, in *WorkoutInput) (*data.Workout, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	w, err := uc.repo.GetWorkout(ctx, id)
	if err != nil {
		return nil, persistenceError("get", id, err)
	}
	previousUserID := w.UserID

	if in.UserID != previousUserID {
		if err := uc.checkOwner(ctx, in.UserID); err != nil {
			return nil, err
		}
	}

	in.applyTo(w)
	return uc.update(ctx, w, previousUserID)
}

// PatchWorkout changes the supplied fields of workout id.
func (uc *WorkoutUsecase) PatchWorkout(ctx context.Context, id int64, p *WorkoutPatch) (*data.Workout, error) {
	w, err := uc.repo.GetWorkout(ctx, id)
	if err != nil {
		return nil, persistenceError("get", id, err)
	}

	p.applyTo(w)
	in := inputOf(w)
	if err := in.validate(); err != nil {
		return nil, err
	}

	return uc.update(ctx, w, w.UserID)
}

// DeleteWorkout removes workout id and publishes workout.deleted.
func (uc *WorkoutUsecase) DeleteWorkout(ctx context.Context, id int64) error {
	w, err := uc.repo.GetWorkout(ctx, id)
	if err != nil {
		return persistenceError("get", id, err)
	}
	if err := uc.repo.DeleteWorkout(ctx, w); err != nil {
		return persistenceError("delete", id, err)
	}

	uc.logger.Success("workout deleted", "workout_id", id, "user_id", w.UserID)
	uc.publish(ctx, model.EventWorkoutDeleted, w)
	return nil
}

func (uc *WorkoutUsecase) update(ctx context.Context, w *data.Workout, previousUserID int64) (*data.Workout, error) {
	w.UpdatedAt = time.Now()
	if err := uc.repo.UpdateWorkout(ctx, w, previousUserID); err != nil {
		return nil, persistenceError("update", w.ID, err)
	}

	uc.logger.Success("workout updated", "workout_id", w.ID, "user_id", w.UserID)
	uc.publish(ctx, model.EventWorkoutUpdated, w)
	return w, nil
}

func (uc *WorkoutUsecase) checkOwner(ctx context.Context, userID int64) error {
	outcome := uc.deps.CheckExists(ctx, uc.owner, userID)
	if outcome.OK() {
		return nil
	}
	return writeDependencyError(outcome, userID)
}

// publish sends the event for a committed write. A failure is logged and
// never undoes the write.
func (uc *WorkoutUsecase) publish(ctx context.Context, routingKey string, w *data.Workout) {
	ev := model.Event{
		RoutingKey: routingKey,
		Payload:    w.EventPayload(),
		OccurredAt: time.Now().UTC(),
	}
	if err := uc.publisher.Publish(ctx, ev); err != nil {
		uc.logger.Warnw("msg", "workout committed but event was not delivered",
			"type", "event",
			"routing_key", routingKey,
			"workout_id", w.ID,
			"error", err)
	}
}

func (in *WorkoutInput) validate() error {
	if in.UserID <= 0 {
		return invalidArgument("user_id must be a positive integer")
	}
	if n := utf8.RuneCountInString(in.WorkoutType); n < MinWorkoutTypeLen || n > MaxWorkoutTypeLen {
		return invalidArgument("workout_type must be %d to %d characters", MinWorkoutTypeLen, MaxWorkoutTypeLen)
	}
	if in.DurationMinutes < MinDurationMinutes || in.DurationMinutes > MaxDurationMinutes {
		return invalidArgument("duration_minutes must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}
	if in.Calories != nil && (*in.Calories < 0 || *in.Calories > MaxCalories) {
		return invalidArgument("calories must be between 0 and %d", MaxCalories)
	}
	if in.WorkoutDate.IsZero() {
		return invalidArgument("workout_date is required")
	}
	if in.Notes != nil && utf8.RuneCountInString(*in.Notes) > MaxNotesLen {
		return invalidArgument("notes must be at most %d characters", MaxNotesLen)
	}
	return nil
}

func (in *WorkoutInput) applyTo(w *data.Workout) {
	w.UserID = in.UserID
	w.WorkoutType = in.WorkoutType
	w.DurationMinutes = in.DurationMinutes
	w.Calories = in.Calories
	w.WorkoutDate = in.WorkoutDate
	w.Notes = in.Notes
}

func (p *WorkoutPatch) applyTo(w *data.Workout) {
	if p.WorkoutType != nil {
		w.WorkoutType = *p.WorkoutType
	}
	if p.DurationMinutes != nil {
		w.DurationMinutes = *p.DurationMinutes
	}
	if p.Calories != nil {
		w.Calories = p.Calories
	}
	if p.WorkoutDate != nil {
		w.WorkoutDate = *p.WorkoutDate
	}
	if p.Notes != nil {
		w.Notes = p.Notes
	}
}

func inputOf(w *data.Workout) *WorkoutInput {
	return &WorkoutInput{
		UserID:          w.UserID,
		WorkoutType:     w.WorkoutType,
		DurationMinutes: w.DurationMinutes,
		Calories:        w.Calories,
		WorkoutDate:     w.WorkoutDate,
		Notes:           w.Notes,
	}
}
