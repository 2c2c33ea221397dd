package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stockwatch/stockwatch/internal/api"
	"github.com/stockwatch/stockwatch/internal/auth"
	"github.com/stockwatch/stockwatch/internal/catalog"
	"github.com/stockwatch/stockwatch/internal/config"
	"github.com/stockwatch/stockwatch/internal/coordinator"
	"github.com/stockwatch/stockwatch/internal/db"
	"github.com/stockwatch/stockwatch/internal/ledger"
	"github.com/stockwatch/stockwatch/internal/logstream"
	"github.com/stockwatch/stockwatch/internal/notify"
	"github.com/stockwatch/stockwatch/internal/probe"
	"github.com/stockwatch/stockwatch/internal/redisx"
	"github.com/stockwatch/stockwatch/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var (
	clients   = make(map[*wsClient]bool)
	clientsMu sync.RWMutex
)

// broadcastStatus pushes the coordinator state and recent log lines to
// every connected dashboard.
func broadcastStatus(coord *coordinator.Coordinator, ring *logstream.Ring, log *slog.Logger) {
	payload := struct {
		States []coordinator.StateSnapshot `json:"states"`
		Logs   []string                    `json:"logs"`
	}{
		States: coord.States(),
		Logs:   ring.Lines(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal status broadcast", "err", err)
		return
	}

	clientsMu.RLock()
	stale := make([]*wsClient, 0)
	for client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	clientsMu.RUnlock()

	if len(stale) > 0 {
		clientsMu.Lock()
		for _, client := range stale {
			delete(clients, client)
		}
		clientsMu.Unlock()
	}
}

func handleWebSocket(coord *coordinator.Coordinator, ring *logstream.Ring, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade", "err", err)
			return
		}

		client := &wsClient{conn: conn}
		clientsMu.Lock()
		clients[client] = true
		clientsMu.Unlock()

		// Send the current snapshot right away.
		broadcastStatus(coord, ring, log)

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				clientsMu.Lock()
				delete(clients, client)
				clientsMu.Unlock()
				break
			}
		}
	}
}

// Main entry point: sets up the stores, coordinator, and HTTP server.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ring := logstream.NewRing(500)
	log := slog.New(logstream.Fanout{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		logstream.NewHandler(ring, slog.LevelInfo),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect to database", "err", err)
		os.Exit(1)
	}
	defer database.Close(ctx)

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewResultCache(rdb)

	var notifier notify.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaAlertTopic, cfg.ServiceName)
		defer kn.Close()
		notifier = kn
		log.Info("kafka notifier enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	} else {
		notifier = &notify.LogNotifier{Log: log}
		log.Info("no kafka brokers configured, alerts go to the log")
	}

	authService, err := auth.NewService(cfg.AdminUsername, cfg.AdminPassword, cfg.JWTSecret)
	if err != nil {
		log.Error("init auth", "err", err)
		os.Exit(1)
	}

	catalogService := catalog.NewService(database)
	ledgerService := ledger.NewService(database)
	registryService := registry.NewService(database)
	prober := probe.New(cfg.ProbeTimeout)

	coord := coordinator.New(database, prober, notifier, cache, log, coordinator.Config{
		Interval:         cfg.PollInterval,
		Concurrency:      cfg.ProbeConcurrency,
		ProbeTimeout:     cfg.ProbeTimeout,
		FailureThreshold: cfg.FailureThreshold,
		NotifyOnDrop:     cfg.NotifyOnDrop,
	})

	handler := &api.Handler{
		Catalog:  catalogService,
		Ledger:   ledgerService,
		Registry: registryService,
		Prober:   prober,
		States:   coord,
		Logs:     ring,
		Cache:    cache,
		Auth:     authService,
	}
	router := api.NewRouter(handler)
	router.Get("/ws", handleWebSocket(coord, ring, log))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run(ctx)
	}()

	// Periodic dashboard broadcast.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				broadcastStatus(coord, ring, log)
			}
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server started", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}

	wg.Wait()
	log.Info("server stopped")
}
