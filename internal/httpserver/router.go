package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/auth"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/catalog"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/health"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/marketdata"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/orders"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/watchlist"
)

type RouterDeps struct {
	AuthHandler      *auth.Handler
	AuthService      *auth.Service
	CatalogHandler   *catalog.Handler
	OrderHandler     *orders.Handler
	MarketHandler    *marketdata.Handler
	WatchlistHandler *watchlist.Handler
	HealthHandler    *health.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	r.Get("/health/full", d.HealthHandler.Full)
	r.Get("/metrics", d.HealthHandler.Metrics)

	r.Route("/api", func(r chi.Router) {
		if d.AuthHandler != nil {
			r.Post("/auth/token", d.AuthHandler.Token)
		}
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Use(AccessLog)

			r.Post("/stocks/search", d.CatalogHandler.SearchStocks)
			r.Post("/leveraged/search", d.CatalogHandler.SearchLeveraged)

			r.Get("/price/current/{symbol}", d.MarketHandler.CurrentPrice)
			r.Get("/volume/opening/{symbol}", d.MarketHandler.OpeningVolume)

			r.Post("/orders/check", d.OrderHandler.Check)
			r.Post("/orders/place", d.OrderHandler.Place)

			r.Get("/watchlist", d.WatchlistHandler.List)
			r.Post("/watchlist", d.WatchlistHandler.Add)
			r.Delete("/watchlist/{productID}", d.WatchlistHandler.Remove)
			r.Get("/watchlist/quotes", d.WatchlistHandler.Quotes)
		})
	})

	return r
}
