// Package biz contains business logic layer implementations.
// This layer holds the workout rules and the summary composition.
package biz

import (
	"FitTrack/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewWorkoutUsecase,
	NewSummaryUsecase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(WorkoutRepo), new(*data.WorkoutRepo)),
	wire.Bind(new(DependencyChecker), new(*data.DependencyClient)),
)
