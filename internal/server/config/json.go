package config

import (
	"encoding/json"
	"os"

	"github.com/uhoapp/authkit/internal/flagx"
	"github.com/uhoapp/authkit/internal/timex"
)

// JsonConfig is a DTO used only for unmarshalling the JSON config file.
// Durations use timex.Duration so they can be written as "10s" or as
// integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	RedisURL            string         `json:"redis_url"`
	RateLimitPolicyFile string         `json:"rate_limit_policy_file"`
	CleanupSchedule     string         `json:"cleanup_schedule"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout"`
	LogLevel            string         `json:"log_level"`
	CORSOrigins         []string       `json:"cors_origins"`
	TrustedProxies      []string       `json:"trusted_proxies"`
}

// parseJson overlays config with the file named by -c / -config.
//
// Only keys present with a non-zero value replace the current settings.
// Token lifetimes are not read from the file. Read and decode errors panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.RateLimitPolicyFile, c.RateLimitPolicyFile)
	setString(&config.CleanupSchedule, c.CleanupSchedule)
	setString(&config.LogLevel, c.LogLevel)

	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
