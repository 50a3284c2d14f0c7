// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/pulsewatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		os.Exit(1)
	}
	ok(fmt.Sprintf("tick=%s probe_timeout=%s workers=%d", cfg.TickInterval, cfg.ProbeTimeout, cfg.MaxConcurrentChecks))

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (write routes would be open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		fail("PUBLIC_API_KEYS is empty (read routes would be open).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("API_ADDR=" + cfg.Addr)

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; targets and history live in memory and are lost on restart.")
	} else {
		ok("DATABASE_URL present")
	}
	if cfg.RedisAddr == "" {
		warn("REDIS_ADDR empty; SSL info is kept in the main store.")
	} else {
		ok("REDIS_ADDR=" + cfg.RedisAddr)
	}
	if cfg.NATSURL == "" {
		warn("NATS_URL empty; transitions are only sent to Discord webhooks.")
	} else {
		ok("NATS_URL present, subject " + cfg.NATSSubject)
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin is allowed by CORS.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
