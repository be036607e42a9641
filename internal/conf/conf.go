package conf

import "time"

// Execution modes for App.Mode.
const (
	ModeProduction = "production"
	ModeTest       = "test"
)

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	App          *App
	Server       *Server
	Data         *Data
	Dependencies *Dependencies
	Summary      *Summary
	Workouts     *Workouts
	Breaker      *Breaker
	Broker       *Broker
	Log          *Log
}

// App holds process-wide switches.
type App struct {
	// Mode is "production" or "test". Test mode disables event publishing.
	Mode string
}

// IsProduction reports whether the service runs with real side effects.
func (a *App) IsProduction() bool {
	return a != nil && a.Mode == ModeProduction
}

// Server holds listener configuration.
type Server struct {
	HTTP *Listener
	GRPC *Listener
}

// Listener is a single transport listener.
type Listener struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Data holds storage configuration.
type Data struct {
	Database *Database
	Redis    *Redis
}

// Database is the relational store configuration.
type Database struct {
	Driver string
	Source string
	// AutoMigrate creates or updates the workouts table at startup.
	AutoMigrate bool
}

// Redis is the cache configuration.
type Redis struct {
	Network      string
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dependencies describes every downstream service the process talks to.
type Dependencies struct {
	// ProxyURL optionally routes outbound dependency calls through an HTTP or SOCKS5 proxy.
	ProxyURL string
	Services map[string]*Dependency
}

// Dependency is a single downstream HTTP service.
type Dependency struct {
	Name    string
	BaseURL string
	// Path is appended to BaseURL; "{id}" is replaced by the entity id.
	Path    string
	Timeout time.Duration
}

// Summary selects the dependencies composed by the summary endpoint.
type Summary struct {
	Mandatory string
	Optional  []string
}

// Workouts configures the workout write path.
type Workouts struct {
	// OwnerDependency is the dependency that must confirm a workout's user exists.
	OwnerDependency string
}

// Breaker configures the per-dependency circuit breakers.
type Breaker struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	// ReportSpec is a six-field cron expression for the periodic breaker report.
	ReportSpec string
}

// Broker configures event publication.
type Broker struct {
	URL            string
	Exchange       string
	DialTimeout    time.Duration
	PublishTimeout time.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
