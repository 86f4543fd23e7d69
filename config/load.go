package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

var ErrMissingSecret = errors.New("webhook secret is not configured")

// Load reads the YAML file at path (when given) and applies env overrides.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return ErrMissingSecret
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported db_driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBURL) == "" {
		return errors.New("config: db_url is required")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = 1 << 20
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		c.Webhook.SignatureHeader = "Typeform-Signature"
	}
	path := strings.TrimSpace(c.Webhook.Path)
	if path == "" {
		path = "/webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	c.Webhook.Path = path
	return nil
}

// Usage renders the env variables understood by the service.
func Usage() string {
	var cfg AppConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
