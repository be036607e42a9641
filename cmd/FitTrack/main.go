// Package main is the entry point of the FitTrack workouts service.
// It initializes the Kratos application with gRPC and HTTP servers.
package main

import (
	"context"
	"flag"
	"os"

	"FitTrack/internal/conf"
	zapLogger "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/robfig/cron/v3"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "fittrack-workouts"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, gs *grpc.Server, hs *http.Server, report *cron.Cron) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
		),
		kratos.AfterStart(func(context.Context) error {
			report.Start()
			return nil
		}),
		kratos.BeforeStop(func(context.Context) error {
			<-report.Stop().Done()
			return nil
		}),
	)
}

func main() {
	flag.Parse()

	// Environment variables override the config file
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Zap is not up yet
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	zapLogger.NewLogHelper(logger).Startup("FitTrack workouts service starting",
		"app.mode", bc.App.Mode,
		"http.addr", bc.Server.HTTP.Addr,
		"grpc.addr", bc.Server.GRPC.Addr,
		"broker.exchange", bc.Broker.Exchange,
		"summary.mandatory", bc.Summary.Mandatory,
		"summary.optional", bc.Summary.Optional,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.App, bc.Server, bc.Data, bc.Dependencies, bc.Summary, bc.Workouts, bc.Breaker, bc.Broker, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
