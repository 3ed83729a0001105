// internal/app/auth.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"
)

var ErrUnauthorized = errors.New("unauthorized")

// Auth checks bearer tokens against hashes stored in Redis under a
// per-student key, e.g. auth:{student} -> {token: ...}.
type Auth struct {
	enabled     bool
	redis       *redis.Client
	keyTemplate string
	tokenHeader string
}

func NewAuth(config *Config) (*Auth, error) {
	if !config.Server.EnableAuth {
		return &Auth{enabled: false, tokenHeader: config.Auth.TokenHeader}, nil
	}

	opt, err := redis.ParseURL(config.Auth.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisAuth(client, config.Auth.TokenKeyTemplate, config.Auth.TokenHeader), nil
}

func newRedisAuth(client *redis.Client, keyTemplate, tokenHeader string) *Auth {
	return &Auth{
		enabled:     true,
		redis:       client,
		keyTemplate: keyTemplate,
		tokenHeader: tokenHeader,
	}
}

func (a *Auth) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func (a *Auth) ValidateToken(ctx context.Context, student, token string) error {
	if !a.enabled {
		return nil
	}

	key := strings.NewReplacer("{student}", student).Replace(a.keyTemplate)

	stored, err := a.redis.HGet(ctx, key, "token").Result()
	if errors.Is(err, redis.Nil) {
		logger.Debug.Printf("Token not found for key: %s", key)
		return fmt.Errorf("token not found: %w", ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	if stored != token {
		logger.Debug.Printf("Token mismatch for student %s and what's found in %s", student, key)
		return fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}

	return nil
}
