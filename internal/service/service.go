// Package service implements the HTTP API of the workouts service.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewWorkoutService)
