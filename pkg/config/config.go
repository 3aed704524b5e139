package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Shopify  ShopifyConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type ShopifyConfig struct {
	APIKey     string
	APISecret  string
	APIVersion string
	AppURL     string
	// OrderTag marks orders created by this app so usage counting can tell
	// them apart from the shop's other orders.
	OrderTag string
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Shopify: ShopifyConfig{
			APIKey:     getEnv("SHOPIFY_API_KEY", ""),
			APISecret:  getEnv("SHOPIFY_API_SECRET", ""),
			APIVersion: getEnv("SHOPIFY_API_VERSION", "2024-01"),
			AppURL:     getEnv("APP_URL", "http://localhost:3000"),
			OrderTag:   getEnv("ORDER_TAG", "orderform-cod"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
