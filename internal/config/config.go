package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	DatabaseDSN      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ServerAddr       string
	SigningKey       []byte
	AllowedOrigins   []string
	GiphyAPIKey      string
	AnnounceCooldown int
}

// defaultAnnounceCooldown is the suppression window, in seconds, for
// repeated join/leave announcements by the same user.
const defaultAnnounceCooldown = 120

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:      databaseDSN,
		RedisAddr:        redisAddr,
		ServerAddr:       serverAddr,
		SigningKey:       signingKey,
		AllowedOrigins:   allowedOrigins,
		AnnounceCooldown: defaultAnnounceCooldown,
	}, nil
}
