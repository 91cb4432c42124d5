package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ClientConfig holds settings for the terminal demo client.
type ClientConfig struct {
	AppID        string        `env:"DRIFTCHAT_APP_ID" env-default:"driftchat-demo"`
	WSURL        string        `env:"DRIFTCHAT_WS_URL" env-default:"ws://localhost:9000/ws"`
	UserID       string        `env:"DRIFTCHAT_USER_ID"`
	AuthToken    string        `env:"DRIFTCHAT_AUTH_TOKEN"`
	CachePath    string        `env:"DRIFTCHAT_CACHE_PATH" env-default:"driftchat.db"`
	AckTimeout   time.Duration `env:"DRIFTCHAT_ACK_TIMEOUT" env-default:"10s"`
	LoginTimeout time.Duration `env:"DRIFTCHAT_LOGIN_TIMEOUT" env-default:"15s"`
}

// LoadClientConfig reads the client configuration from environment
// variables, falling back to the struct defaults.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
