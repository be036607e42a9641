package biz

import (
	"context"

	"FitTrack/internal/data"
	"FitTrack/internal/model"
)

// WorkoutRepo persists workouts. Errors are classified *pkgerrors.DatabaseError values.
// Implementation is data.WorkoutRepo.
type WorkoutRepo interface {
	CreateWorkout(ctx context.Context, w *data.Workout) error
	GetWorkout(ctx context.Context, id int64) (*data.Workout, error)
	ListWorkouts(ctx context.Context, limit, offset int) ([]*data.Workout, error)
	ListWorkoutsByUser(ctx context.Context, userID int64) ([]*data.Workout, error)
	UpdateWorkout(ctx context.Context, w *data.Workout, previousUserID int64) error
	DeleteWorkout(ctx context.Context, w *data.Workout) error
}

// DependencyChecker calls downstream services through their circuit breakers.
// Implementation is data.DependencyClient.
type DependencyChecker interface {
	CheckExists(ctx context.Context, dependency string, id int64) model.Outcome
	Fetch(ctx context.Context, dependency string, id int64) model.Outcome
}
