package watchlist

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/catalog"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
)

// QuoteScanner fetches live quotes for a batch of instruments. Entries
// the feed had nothing for are absent from the result map.
type QuoteScanner interface {
	ScanQuotes(ctx context.Context, instruments []model.Instrument) map[string]model.PriceQuote
}

type Handler struct {
	store    Store
	resolver *catalog.UnderlyingResolver
	scanner  QuoteScanner
}

func NewHandler(store Store, resolver *catalog.UnderlyingResolver, scanner QuoteScanner) *Handler {
	return &Handler{store: store, resolver: resolver, scanner: scanner}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]Entry{"entries": entries})
}

type addRequest struct {
	Query string `json:"query"`
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "query is required"})
		return
	}
	instrument, err := h.resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if instrument == nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "no instrument matches the query"})
		return
	}
	entry := Entry{
		ProductID:   instrument.ID,
		Symbol:      instrument.Symbol,
		Name:        instrument.Name,
		QuoteFeedID: instrument.QuoteFeedID,
	}
	if err := h.store.Add(r.Context(), entry); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if err := h.store.Remove(r.Context(), productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type quotesResponse struct {
	Quotes map[string]model.PriceQuote `json:"quotes"`
}

// Quotes scans the whole watch list and returns whatever the feed had.
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	instruments := make([]model.Instrument, 0, len(entries))
	for _, e := range entries {
		instruments = append(instruments, model.Instrument{
			ID:          e.ProductID,
			Symbol:      e.Symbol,
			Name:        e.Name,
			QuoteFeedID: e.QuoteFeedID,
		})
	}
	quotes := h.scanner.ScanQuotes(r.Context(), instruments)
	httputil.WriteJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}
