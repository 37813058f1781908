package marketdata

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type priceResponse struct {
	Instrument model.Instrument `json:"instrument"`
	Quote      model.PriceQuote `json:"quote"`
}

func (h *Handler) CurrentPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(chi.URLParam(r, "symbol"))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	instrument, quote, err := h.svc.CurrentPrice(r.Context(), symbol)
	if err != nil {
		writeQuoteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, priceResponse{Instrument: instrument, Quote: quote})
}

type volumeResponse struct {
	Instrument model.Instrument     `json:"instrument"`
	Volume     model.VolumeSnapshot `json:"volume"`
}

func (h *Handler) OpeningVolume(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(chi.URLParam(r, "symbol"))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	instrument, volume, err := h.svc.OpeningVolume(r.Context(), symbol)
	if err != nil {
		writeQuoteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, volumeResponse{Instrument: instrument, Volume: volume})
}

func writeQuoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoQuoteData), errors.Is(err, broker.ErrNoQuoteFeed):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, broker.ErrAuthExpired), errors.Is(err, broker.ErrSessionUnavailable):
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, broker.ErrRateLimited):
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
	}
}
