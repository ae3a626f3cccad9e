package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
	"github.com/tendant/scoped-upload/pkg/scopedupload/gatewaytest"
)

// Local gateway for trying the uploader without a real image service.
// Objects live in memory and are lost on exit.

type Config struct {
	Port          string `env:"GATEWAY_PORT" env-default:"8090" env-description:"HTTP port"`
	SigningSecret string `env:"SCOPED_UPLOAD_SIGNING_SECRET" env-default:"dev-secret" env-description:"HMAC secret shared with the uploader"`
	Algorithm     string `env:"SCOPED_UPLOAD_SIGNING_ALGORITHM" env-default:"HS256" env-description:"HS256, HS384 or HS512"`
}

func main() {
	var cfg Config
	flag.Usage = cleanenv.FUsage(flag.CommandLine.Output(), &cfg, nil, flag.Usage)
	portFlag := flag.String("port", "", "HTTP port (overrides GATEWAY_PORT)")
	flag.Parse()

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read environment", "err", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	alg, err := scopedupload.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		slog.Error("Invalid signing algorithm", "err", err)
		os.Exit(1)
	}

	logger := slog.Default()
	gw := gatewaytest.New(cfg.SigningSecret, alg, gatewaytest.WithLogger(logger))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok, %d objects\n", gw.Len())
	})
	r.Mount("/", gw.Routes())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Gateway listening", "addr", server.Addr, "algorithm", alg)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Forced shutdown", "err", err)
	}
}
