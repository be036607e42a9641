//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"FitTrack/internal/biz"
	"FitTrack/internal/conf"
	"FitTrack/internal/data"
	"FitTrack/internal/server"
	"FitTrack/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.App, *conf.Server, *conf.Data, *conf.Dependencies, *conf.Summary, *conf.Workouts, *conf.Breaker, *conf.Broker, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newBreakerReport,
		newApp,
	))
}
