package config

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/uhoapp/authkit/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-r string   Redis URL for the shared rate limit store
//	-l string   rate limit policy file (YAML)
//	-v string   log level
//	-o string   comma-separated CORS origins
//	-p string   comma-separated trusted proxies
//
// os.Args is filtered with flagx.FilterArgs first so that -c / -config and
// flags of other components do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-r", "-l", "-v", "-o", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL (empty: in-memory rate limiting)")
	fs.StringVar(&config.RateLimitPolicyFile, "l", config.RateLimitPolicyFile, "rate limit policy file")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level (debug, info, warn, error)")

	fs.Func("o", "comma-separated CORS origins", func(v string) error {
		config.CORSOrigins = splitList(v)
		return nil
	})
	fs.Func("p", "comma-separated trusted proxies", func(v string) error {
		config.TrustedProxies = splitList(v)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
