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

	"pongarena/coordinator/internal/config"
	"pongarena/coordinator/internal/coordinator"
	"pongarena/coordinator/internal/logging"
	"pongarena/coordinator/internal/store"
)

func main() {
	//1.- A local .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logging.ReplaceGlobals(logger)

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		logger.Fatal("open database", logging.String("path", cfg.SQLitePath), logging.Error(err))
	}
	defer db.Close()

	coord := coordinator.New(cfg, logger, store.NewMatchStore(db), store.NewFriendStore(db))
	defer coord.Close()

	gw, err := newGateway(cfg, logger, coord)
	if err != nil {
		logger.Fatal("build websocket gateway", logging.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           newRouter(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("coordinator listening", logging.String("addr", cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", logging.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", logging.Error(err))
	}
}
