// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything the sync engine needs to talk to Instagram and
// WordPress. It is built once in main and passed to constructors explicitly.
type Config struct {
	InstagramAccessToken string
	WordPressSiteURL     string
	WordPressUsername    string
	WordPressAppPassword string
	CategoryID           int
	PushGatewayURL       string
	DBPath               string
	MediaDir             string
}

// Load reads configuration from environment variables, with an optional .env
// file in the working directory taking lower precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	// A missing .env is fine; env vars alone are a valid configuration.
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("DB_PATH", "instagram_posts.db")
	v.SetDefault("MEDIA_DIR", "media")

	cfg := &Config{
		InstagramAccessToken: v.GetString("INSTAGRAM_ACCESS_TOKEN"),
		WordPressSiteURL:     v.GetString("WORDPRESS_SITE_URL"),
		WordPressUsername:    v.GetString("WORDPRESS_USERNAME"),
		WordPressAppPassword: v.GetString("WORDPRESS_APPLICATION_PASSWORD"),
		CategoryID:           v.GetInt("CATEGORY_ID"),
		PushGatewayURL:       v.GetString("PROMETHEUS_PUSH_GATEWAY"),
		DBPath:               v.GetString("DB_PATH"),
		MediaDir:             v.GetString("MEDIA_DIR"),
	}

	if cfg.WordPressSiteURL == "" {
		return nil, fmt.Errorf("WORDPRESS_SITE_URL is not set")
	}
	if cfg.WordPressUsername == "" || cfg.WordPressAppPassword == "" {
		return nil, fmt.Errorf("WORDPRESS_USERNAME and WORDPRESS_APPLICATION_PASSWORD must be set")
	}
	if cfg.CategoryID == 0 {
		return nil, fmt.Errorf("CATEGORY_ID is not set")
	}
	// PROMETHEUS_PUSH_GATEWAY stays optional: an empty value skips the push,
	// same as --no-metrics.
	return cfg, nil
}
