package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sergiecode/gemini-chat-backend/internal/auth"
	"github.com/sergiecode/gemini-chat-backend/internal/config"
	"github.com/sergiecode/gemini-chat-backend/internal/gemini"
	"github.com/sergiecode/gemini-chat-backend/internal/handler"
	chatservice "github.com/sergiecode/gemini-chat-backend/internal/service/chat"
	"github.com/sergiecode/gemini-chat-backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	messageStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open message store: %v", err)
	}
	defer messageStore.Close()

	geminiClient := gemini.New(cfg.Gemini, nil)
	if geminiClient.Configured() {
		log.Println("Gemini client configured")
	} else {
		log.Println("Gemini API key missing or placeholder, sends will be rejected until it is set")
	}

	provider := auth.NewMemoryProvider(cfg.Auth.Users)
	chatSvc := chatservice.NewService(geminiClient, messageStore)

	router := handler.NewRouter(cfg.Server, provider, chatSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
