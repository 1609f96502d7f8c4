package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kitahub.org/internal/audit"
	"kitahub.org/internal/auth"
	"kitahub.org/internal/config"
	"kitahub.org/internal/httpapi"
	"kitahub.org/internal/obs"
	"kitahub.org/internal/rbac"
	"kitahub.org/internal/revocation"
	pgstore "kitahub.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	if cfg.PostgresDSN == "" {
		log.Fatal("missing DSN: set KITAHUB_PG_DSN")
	}
	store, err := pgstore.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Redis-backed revocation when configured, in-process otherwise.
	var revocations revocation.Store
	if cfg.RedisAddr != "" {
		rs, err := revocation.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("revocation store: %v", err)
		}
		defer rs.Close()
		revocations = rs
	} else {
		log.Printf("no redis configured, token revocation is per-process only")
		revocations = revocation.NewMemoryStore(time.Now)
	}

	validator, err := auth.NewValidator(cfg, revocations)
	if err != nil {
		log.Fatalf("validator: %v", err)
	}

	auditLog, err := audit.New(store, audit.Config{Enabled: cfg.AuditEnabled})
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	svc, err := rbac.NewService(store, auditLog)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, validator, svc, auditLog, revocations, version, cfg.IsDevelopment())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting kitahub-authd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
