package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/audit"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/config"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/httpapi"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DSN == "" {
		log.Fatal("missing DSN: set ZOMI_PG_DSN")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)
	hub := stream.NewHub(32)
	recorder := audit.NewRecorder(store.Audit(), hub)

	passwords := auth.NewPasswordPolicy(cfg.Password)
	invites := auth.NewInviteCodeIssuer(store.InviteCodes(), cfg.InviteCodeTTL)
	tokens, err := auth.NewTokenService(cfg.SigningSecret, store.RefreshTokens(),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	svc, err := auth.NewService(store, passwords, invites, tokens, recorder, auth.NewLockoutTracker())
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	guard := auth.NewGuard(tokens)

	api := httpapi.New(svc, guard, hub, store, cfg, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GRPCAddr != "" {
		go func() {
			if err := httpapi.ServeGRPCHealth(ctx, cfg.GRPCAddr, store); err != nil {
				obs.Log("error", "grpc_health_failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	log.Printf("Starting zomi-portal-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = db.Close()
	log.Println("Stopped")
}
