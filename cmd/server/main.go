package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/ruralpay/ledger/internal/store/sqlstore"
)

// openStore picks the ledger store for the configured driver. SQL stores also
// answer identity checks from their users table.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, services.IdentityChecker, func(), error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Database.Driver {
	case "memory":
		log.Println("[MAIN] Using in-memory store; every authenticated user is accepted")
		st := memory.New(memory.WithLockTimeout(cfg.Ledger.LockTimeout))
		return st, services.NewOpenIdentityChecker(st), func() {}, nil
	case "sqlite":
		db, err = database.InitSQLite(cfg.Database)
	case "postgres":
		db, err = database.InitPostgres(cfg.Database)
	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	var st *sqlstore.Store
	if cfg.Database.Driver == "sqlite" {
		st = sqlstore.NewSQLite(db, sqlstore.WithLockTimeout(cfg.Ledger.LockTimeout))
	} else {
		st = sqlstore.NewPostgres(db, sqlstore.WithLockTimeout(cfg.Ledger.LockTimeout))
	}
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := st.SeedUsers(ctx, cfg.Ledger.SeedUsers); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("seed users: %w", err)
	}

	return st, st, func() { db.Close() }, nil
}

func main() {
	cfg := config.Load(".env")

	st, identity, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	auditLogger := audit.NewAuditLogger()

	var notifier services.Notifier = services.NewAuditNotifier(auditLogger)
	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
		notifier = services.MultiNotifier{
			services.NewRedisNotifier(redisClient, cfg.Redis.NotificationQueue),
			notifier,
		}
	}

	numbers := services.NewTransactionNumberGenerator(st, nil, cfg.Ledger.IDMaxAttempts)
	ledger := services.NewLedgerService(st, identity, notifier, numbers,
		services.WithNegativeBalances(cfg.Ledger.AllowNegativeBalance),
		services.WithNotifyTimeout(cfg.Ledger.NotifyTimeout),
		services.WithAuditLogger(auditLogger),
	)
	accounts := services.NewAccountService(st, identity, auditLogger)

	transactionHandler := handlers.NewTransactionHandler(ledger, accounts)
	accountHandler := handlers.NewAccountHandler(accounts, ledger)

	if cfg.JWT.SecretKey == "" {
		log.Println("[MAIN] JWT_SECRET_KEY is empty; every authenticated request will be rejected")
	}
	auth := mW.NewAuthenticator(cfg.JWT.SecretKey)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.AuthMiddleware)

		transactionHandler.Routes(r)
		accountHandler.Routes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let in-flight settlement notifications drain before the redis client closes.
	ledger.Wait()
	log.Println("Server stopped")
}
