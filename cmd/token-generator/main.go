// Command token-generator issues bearer tokens for the video API when
// auth.jwt_secret is configured.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/api/middleware"
	"github.com/ping15/ShortPlayGenerator/internal/config"
)

func main() {
	subject := flag.String("subject", "scheduler", "token subject identifying the caller")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set, the video API is unauthenticated")
		os.Exit(1)
	}

	token, err := middleware.SignToken(cfg.Auth.JWTSecret, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
