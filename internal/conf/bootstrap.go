// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables.
package conf

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const dependencyPrefix = "dependencies.services."

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with FITTRACK_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Compatibility environment variables:
//   - MYSQL_DSN: MySQL connection string (required)
//   - RABBIT_URL: broker connection URL (required in production mode)
//   - EXCHANGE_NAME: topic exchange name
//   - APP_ENV: execution mode ("production" or "test")
//   - USERS_SERVICE_URL / GOALS_SERVICE_URL: dependency base URLs
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FITTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("app.mode", "FITTRACK_APP_MODE", "APP_ENV")
	_ = v.BindEnv("data.database.source", "FITTRACK_DATA_DATABASE_SOURCE", "MYSQL_DSN")
	_ = v.BindEnv("data.redis.addr", "FITTRACK_DATA_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("broker.url", "FITTRACK_BROKER_URL", "RABBIT_URL")
	_ = v.BindEnv("broker.exchange", "FITTRACK_BROKER_EXCHANGE", "EXCHANGE_NAME")
	_ = v.BindEnv(dependencyPrefix+"users.base_url", "FITTRACK_DEPENDENCIES_SERVICES_USERS_BASE_URL", "USERS_SERVICE_URL")
	_ = v.BindEnv(dependencyPrefix+"goals.base_url", "FITTRACK_DEPENDENCIES_SERVICES_GOALS_BASE_URL", "GOALS_SERVICE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		App: &App{
			Mode: strings.ToLower(v.GetString("app.mode")),
		},
		Server: &Server{
			HTTP: &Listener{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
			GRPC: &Listener{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: v.GetDuration("server.grpc.timeout"),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver:      v.GetString("data.database.driver"),
				Source:      v.GetString("data.database.source"),
				AutoMigrate: v.GetBool("data.database.auto_migrate"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
		},
		Dependencies: loadDependencies(v),
		Summary: &Summary{
			Mandatory: v.GetString("summary.mandatory"),
			Optional:  v.GetStringSlice("summary.optional"),
		},
		Workouts: &Workouts{
			OwnerDependency: v.GetString("workouts.owner_dependency"),
		},
		Breaker: &Breaker{
			FailureThreshold: v.GetUint32("breaker.failure_threshold"),
			ResetTimeout:     v.GetDuration("breaker.reset_timeout"),
			ReportSpec:       v.GetString("breaker.report_spec"),
		},
		Broker: &Broker{
			URL:            v.GetString("broker.url"),
			Exchange:       v.GetString("broker.exchange"),
			DialTimeout:    v.GetDuration("broker.dial_timeout"),
			PublishTimeout: v.GetDuration("broker.publish_timeout"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// loadDependencies collects every dependencies.services.<name> block from all
// configuration sources.
func loadDependencies(v *viper.Viper) *Dependencies {
	deps := &Dependencies{
		ProxyURL: v.GetString("dependencies.proxy_url"),
		Services: make(map[string]*Dependency),
	}

	names := make(map[string]struct{})
	for _, key := range v.AllKeys() {
		if !strings.HasPrefix(key, dependencyPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, dependencyPrefix)
		if name, _, ok := strings.Cut(rest, "."); ok && name != "" {
			names[name] = struct{}{}
		}
	}

	for name := range names {
		base := dependencyPrefix + name + "."
		timeout := v.GetDuration(base + "timeout")
		if timeout == 0 {
			timeout = v.GetDuration("dependencies.default_timeout")
		}
		deps.Services[name] = &Dependency{
			Name:    name,
			BaseURL: strings.TrimSuffix(v.GetString(base+"base_url"), "/"),
			Path:    v.GetString(base + "path"),
			Timeout: timeout,
		}
	}

	return deps
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.mode", ModeProduction)

	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.database.auto_migrate", true)
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("dependencies.default_timeout", 3*time.Second)
	v.SetDefault(dependencyPrefix+"users.base_url", "http://localhost:8001")
	v.SetDefault(dependencyPrefix+"users.path", "/api/users/{id}")
	v.SetDefault(dependencyPrefix+"users.timeout", 3*time.Second)
	v.SetDefault(dependencyPrefix+"goals.base_url", "http://localhost:8003")
	v.SetDefault(dependencyPrefix+"goals.path", "/api/goals/user/{id}")
	v.SetDefault(dependencyPrefix+"goals.timeout", 2*time.Second)

	v.SetDefault("summary.mandatory", "users")
	v.SetDefault("summary.optional", []string{"goals"})
	v.SetDefault("workouts.owner_dependency", "users")

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)
	v.SetDefault("breaker.report_spec", "0 */5 * * * *")

	v.SetDefault("broker.exchange", "events_topic")
	v.SetDefault("broker.dial_timeout", 5*time.Second)
	v.SetDefault("broker.publish_timeout", 5*time.Second)
	// Note: broker.url (RABBIT_URL) is required in production mode

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.env", "production")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every problem found.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.App == nil || (bc.App.Mode != ModeProduction && bc.App.Mode != ModeTest) {
		problems = append(problems, "app.mode must be \"production\" or \"test\" (APP_ENV)")
	}

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		problems = append(problems, "data.database.source (MYSQL_DSN)")
	}

	// A production process without a broker would silently drop every event.
	if bc.App.IsProduction() && (bc.Broker == nil || bc.Broker.URL == "") {
		problems = append(problems, "broker.url (RABBIT_URL)")
	}
	if bc.Broker == nil || bc.Broker.Exchange == "" {
		problems = append(problems, "broker.exchange (EXCHANGE_NAME)")
	}

	if bc.Breaker == nil || bc.Breaker.FailureThreshold < 1 {
		problems = append(problems, "breaker.failure_threshold must be >= 1")
	}
	if bc.Breaker != nil && bc.Breaker.ResetTimeout < 0 {
		problems = append(problems, "breaker.reset_timeout must be >= 0")
	}

	problems = append(problems, validateDependencies(bc)...)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}

func validateDependencies(bc *Bootstrap) []string {
	var problems []string

	if bc.Dependencies == nil {
		return []string{"dependencies.services"}
	}

	names := make([]string, 0, len(bc.Dependencies.Services))
	for name := range bc.Dependencies.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := bc.Dependencies.Services[name]
		if dep.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("dependencies.services.%s.base_url", name))
		}
		if dep.Timeout <= 0 {
			problems = append(problems, fmt.Sprintf("dependencies.services.%s.timeout must be > 0", name))
		}
	}

	known := func(name string) bool {
		_, ok := bc.Dependencies.Services[name]
		return ok
	}

	if bc.Workouts == nil || !known(bc.Workouts.OwnerDependency) {
		problems = append(problems, "workouts.owner_dependency must name a configured dependency")
	}
	if bc.Summary == nil || !known(bc.Summary.Mandatory) {
		problems = append(problems, "summary.mandatory must name a configured dependency")
	}
	if bc.Summary != nil {
		for _, name := range bc.Summary.Optional {
			if !known(name) {
				problems = append(problems, fmt.Sprintf("summary.optional %q is not a configured dependency", name))
			}
		}
	}

	return problems
}
