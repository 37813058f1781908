package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/auth"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/catalog"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/config"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/db"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/health"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httpserver"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/marketdata"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/orders"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/quotecast"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/refdata"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/watchlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	startedAt := time.Now().UTC()

	var pool *pgxpool.Pool
	var watchStore watchlist.Store
	if cfg.DBDSN != "" {
		pool, err = db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		pgStore := watchlist.NewPGStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		watchStore = pgStore
	} else {
		log.Printf("DB_DSN not set, watchlist is in-memory only")
		watchStore = watchlist.NewMemoryStore()
	}

	var source broker.SessionSource = broker.DisabledSource{}
	if cfg.SessionID != "" {
		source = broker.StaticSource{Session: broker.Session{ID: cfg.SessionID, IntAccount: cfg.IntAccount}}
	}
	brokerClient := broker.NewClient(cfg.SearchURL, cfg.TradingURL, source)
	quoteClient := quotecast.NewClient(cfg.QuotecastURL, cfg.UserToken)

	searcher := catalog.NewSearcher(brokerClient)
	underlyingResolver := catalog.NewUnderlyingResolver(searcher)
	feedResolver := refdata.NewResolver(brokerClient)
	marketSvc := marketdata.NewService(underlyingResolver, feedResolver, quoteClient)

	orderStore := orders.NewStore()
	orderSvc := orders.NewService(brokerClient, orderStore)

	var authSvc *auth.Service
	var authHandler *auth.Handler
	authMode := "open"
	if cfg.APIKeyHash != "" || cfg.APIKey != "" {
		authSvc = auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL, cfg.APIKeyHash, cfg.APIKey)
		authHandler = auth.NewHandler(authSvc)
		authMode = "jwt"
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:      authHandler,
		AuthService:      authSvc,
		CatalogHandler:   catalog.NewHandler(searcher, underlyingResolver),
		OrderHandler:     orders.NewHandler(orderSvc, cfg.SlippageBuffer),
		MarketHandler:    marketdata.NewHandler(marketSvc),
		WatchlistHandler: watchlist.NewHandler(watchStore, underlyingResolver, marketSvc),
		HealthHandler:    health.NewHandler(pool, startedAt, authMode, cfg.HTTPAddr, cfg.InternalToken),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("connector listening on %s (auth=%s)", cfg.HTTPAddr, authMode)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
