package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"faceattend/internal/api"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/db"
	"faceattend/internal/export"
	"faceattend/internal/notify"
	"faceattend/internal/service"
	"faceattend/internal/store"
	"faceattend/internal/vault"
	"faceattend/internal/version"
	"faceattend/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	sqdb, err := db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer sqdb.Close()
	if err := db.ApplyMigrationFile(sqdb, "migrations/001_init.sql"); err != nil {
		log.Fatalf("migration: %v", err)
	}

	st := store.New(sqdb)
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatalf("bootstrap admin hash: %v", err)
		}
		if err := st.EnsureAdmin(context.Background(), cfg.BootstrapAdminEmail, hash); err != nil {
			log.Fatalf("bootstrap admin create: %v", err)
		}
	}

	vlt, err := vault.New(cfg.TemplateEncryptKey)
	if err != nil {
		log.Fatalf("template vault: %v", err)
	}
	models := vision.NewStubModels()
	notifier := notify.NewNotifier(cfg)
	svc := service.New(cfg, st, vlt, models, notifier)

	exp, err := export.New(cfg, st)
	if err != nil {
		log.Fatalf("hr export: %v", err)
	}
	if exp != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer exp.Close()
		go exp.Run(ctx)
		log.Printf("hr export enabled driver=%s interval=%s", cfg.ExportDBDriver, cfg.ExportInterval)
	}

	r := api.NewRouter(cfg, svc, exp)
	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	log.Printf("faceattend %s listening on %s", version.Version, cfg.ListenAddr)
	if err := hsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}
