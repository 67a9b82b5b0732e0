// Package config collects the server's environment configuration.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Addr is the listen address, LISTEN_ADDR, default ":8080".
	Addr string
	// DatabaseURL is the Postgres connection string, DATABASE_URL. When
	// empty the server keeps documents in memory only.
	DatabaseURL string
	// RedisAddr enables the cross-instance session bridge, REDIS_ADDR.
	RedisAddr string
	// MDNS advertises the server on the local network, MDNS=1.
	MDNS bool
}

func FromEnv() Config {
	return Config{
		Addr:        envOr("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		MDNS:        envBool("MDNS"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
