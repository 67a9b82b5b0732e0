// The collaboration server: document CRUD over HTTP, realtime sync over
// websockets, one session hub per open document.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Henryk91/bpmn-collaborator/internal/config"
	"github.com/Henryk91/bpmn-collaborator/internal/server"
	"github.com/Henryk91/bpmn-collaborator/internal/session"
	"github.com/Henryk91/bpmn-collaborator/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.FromEnv()
	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
		log.Println("Connected to PostgreSQL successfully.")
	} else {
		st = store.NewMemStore()
		log.Println("DATABASE_URL not set, keeping documents in memory.")
	}
	if err := store.Seed(ctx, st); err != nil {
		return err
	}

	var bridge *session.Bridge
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		bridge = session.NewBridge(rdb)
		log.Println("Connected to Redis successfully.")
	}

	reg := session.NewRegistry(st, bridge)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.New(st, reg).Router()}

	if cfg.MDNS {
		port, err := listenPort(cfg.Addr)
		if err != nil {
			return err
		}
		stop, err := server.AdvertiseMDNS(port)
		if err != nil {
			return err
		}
		defer stop()
		log.Printf("mDNS service registered on port %d", port)
	}

	go func() {
		log.Printf("Collaboration server starting on %s...", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	log.Printf("Signal caught: %v", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	// Stopping the sessions flushes every open document's snapshot.
	reg.Shutdown()
	return nil
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
