package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kasirhub/backend/internal/cache"
	"kasirhub/backend/internal/config"
	"kasirhub/backend/internal/httpapi"
	"kasirhub/backend/internal/imaging"
	"kasirhub/backend/internal/service"
	"kasirhub/backend/internal/store"
	"kasirhub/backend/internal/store/memory"
	pgstore "kasirhub/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	urlCache := cache.ImageURLCache(cache.NoopImageURLCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisImageURLCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop image cache", err)
		} else {
			urlCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("image cache: redis")
		}
	} else {
		log.Println("image cache: noop")
	}

	if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		log.Fatalf("could not create image directory %s: %v", cfg.ImageDir, err)
	}
	objects := imaging.NewDiskObjectStore(cfg.ImageDir, cfg.ImageBaseURL)
	rehoster := imaging.NewRehoster(objects, urlCache)

	svc := service.New(repo, rehoster)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	mux := http.NewServeMux()
	mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImageDir))))
	mux.Handle("/", api.Handler())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !strings.HasPrefix(cfg.ImageBaseURL, "http://") && !strings.HasPrefix(cfg.ImageBaseURL, "https://") {
		return fmt.Errorf("IMAGE_BASE_URL must be an absolute http(s) URL")
	}
	return nil
}
