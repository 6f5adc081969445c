package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the homework API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	SendGridAPIKey         string
	ReminderFromEmail      string
	ReminderFromName       string
	ReminderSweepInterval  time.Duration
	SignedURLTTL           time.Duration
	StatsCacheTTL          time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDU")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "EDU Homework API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "edu/homework")
	v.SetDefault("reminder.sweep_interval", "5m")
	v.SetDefault("reminder.from_email", "no-reply@edu.local")
	v.SetDefault("reminder.from_name", "Homework Reminder")
	v.SetDefault("signed_url.ttl", "15m")
	v.SetDefault("stats.cache_ttl", "5m")

	sweepInterval, err := time.ParseDuration(v.GetString("reminder.sweep_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reminder sweep interval: %w", err)
	}

	signedURLTTL, err := time.ParseDuration(v.GetString("signed_url.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid signed url ttl: %w", err)
	}

	statsTTL, err := time.ParseDuration(v.GetString("stats.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid stats cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		SendGridAPIKey:         v.GetString("sendgrid.api_key"),
		ReminderFromEmail:      v.GetString("reminder.from_email"),
		ReminderFromName:       v.GetString("reminder.from_name"),
		ReminderSweepInterval:  sweepInterval,
		SignedURLTTL:           signedURLTTL,
		StatsCacheTTL:          statsTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}
