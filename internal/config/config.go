// Package config содержит логику чтения конфигурации сервиса заказов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса заказов.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	JWTSecret         string `env:"JWT_SECRET"`
	PaystackSecretKey string `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string `env:"PAYSTACK_BASE_URL"`
	TermiiAPIKey      string `env:"TERMII_API_KEY"`
	TermiiSenderID    string `env:"TERMII_SENDER_ID"`
	TermiiBaseURL     string `env:"TERMII_BASE_URL"`
	KeepAliveURL      string `env:"API_URI"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envValues := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", "", "secret key for signing access tokens")
	flag.StringVar(&cfg.PaystackSecretKey, "paystack-key", "", "Paystack secret key")
	flag.StringVar(&cfg.PaystackBaseURL, "paystack-url", "https://api.paystack.co", "Paystack API base URL")
	flag.StringVar(&cfg.TermiiAPIKey, "termii-key", "", "Termii API key")
	flag.StringVar(&cfg.TermiiSenderID, "termii-sender", "Masa Treat", "Termii sender ID")
	flag.StringVar(&cfg.TermiiBaseURL, "termii-url", "https://api.ng.termii.com", "Termii API base URL")
	flag.StringVar(&cfg.KeepAliveURL, "keepalive-url", "", "public URL to ping to keep the instance awake")

	flag.Parse()

	if envValues.RunAddress != "" {
		cfg.RunAddress = envValues.RunAddress
	}
	if envValues.DatabaseURI != "" {
		cfg.DatabaseURI = envValues.DatabaseURI
	}
	if envValues.JWTSecret != "" {
		cfg.JWTSecret = envValues.JWTSecret
	}
	if envValues.PaystackSecretKey != "" {
		cfg.PaystackSecretKey = envValues.PaystackSecretKey
	}
	if envValues.PaystackBaseURL != "" {
		cfg.PaystackBaseURL = envValues.PaystackBaseURL
	}
	if envValues.TermiiAPIKey != "" {
		cfg.TermiiAPIKey = envValues.TermiiAPIKey
	}
	if envValues.TermiiSenderID != "" {
		cfg.TermiiSenderID = envValues.TermiiSenderID
	}
	if envValues.TermiiBaseURL != "" {
		cfg.TermiiBaseURL = envValues.TermiiBaseURL
	}
	if envValues.KeepAliveURL != "" {
		cfg.KeepAliveURL = envValues.KeepAliveURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
