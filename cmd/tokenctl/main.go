// tokenctl mints access tokens for local development and support work. The
// signing secret comes from the same environment the service reads, so a
// minted token is valid against a locally running authd.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"kitahub.org/internal/auth"
	"kitahub.org/internal/config"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		personID = flag.String("person", "", "Subject person id")
		ttl      = flag.Duration("ttl", 0, "Token lifetime (defaults to the configured TTL)")
	)
	flag.Parse()

	if *personID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *ttl > 0 {
		cfg.AccessTokenTTL = *ttl
	}

	issuer, err := auth.NewIssuer(cfg)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	token, expiresAt, err := issuer.Issue(*personID)
	if err != nil {
		log.Fatalf("issue: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
}
