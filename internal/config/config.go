package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting the application needs. Values are read
// from environment variables, with an optional app.env file for local runs.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Route optimization / geocoding provider (OpenRouteService-compatible).
	GeoBaseURL       string        `mapstructure:"GEO_BASE_URL"`
	GeoAPIKey        string        `mapstructure:"GEO_API_KEY"`
	OptimizerTimeout time.Duration `mapstructure:"OPTIMIZER_TIMEOUT"`

	// Batching parameters.
	BatchingHorizonHours int     `mapstructure:"BATCHING_HORIZON_HOURS"`
	RouteCapacityUnits   int     `mapstructure:"ROUTE_CAPACITY_UNITS"`
	MaxBranchDistanceKm  float64 `mapstructure:"MAX_BRANCH_DISTANCE_KM"`

	// A pending route older than this is withdrawn and its requests re-queued.
	RouteOfferWindowHours int `mapstructure:"ROUTE_OFFER_WINDOW_HOURS"`

	SESRegion string `mapstructure:"SES_REGION"`
	EmailFrom string `mapstructure:"EMAIL_FROM"`

	// Cron specs for the background sweeps.
	SweepSchedule    string `mapstructure:"SWEEP_SCHEDULE"`
	BatchingSchedule string `mapstructure:"BATCHING_SCHEDULE"`
}

// LoadConfig reads configuration from the given directory (app.env) and the
// process environment. Environment variables take precedence over the file.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CLIENT_ORIGIN", "http://localhost:5173")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("GEO_BASE_URL", "https://api.openrouteservice.org")
	viper.SetDefault("OPTIMIZER_TIMEOUT", "30s")
	viper.SetDefault("BATCHING_HORIZON_HOURS", 24)
	viper.SetDefault("ROUTE_CAPACITY_UNITS", 40)
	viper.SetDefault("MAX_BRANCH_DISTANCE_KM", 30.0)
	viper.SetDefault("ROUTE_OFFER_WINDOW_HOURS", 24)
	viper.SetDefault("SES_REGION", "us-east-1")
	viper.SetDefault("SWEEP_SCHEDULE", "0 1 * * *")
	viper.SetDefault("BATCHING_SCHEDULE", "@every 15m")

	if err := viper.ReadInConfig(); err != nil {
		// The env file is optional; only a parse failure is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
