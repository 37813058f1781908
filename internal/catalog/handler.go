package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

type Handler struct {
	searcher *Searcher
	resolver *UnderlyingResolver
}

func NewHandler(searcher *Searcher, resolver *UnderlyingResolver) *Handler {
	return &Handler{searcher: searcher, resolver: resolver}
}

type stockSearchRequest struct {
	Query string `json:"q"`
	Limit int    `json:"limit"`
}

type stockSearchResponse struct {
	Results []model.Instrument `json:"results"`
	Partial bool               `json:"partial"`
}

func (h *Handler) SearchStocks(w http.ResponseWriter, r *http.Request) {
	var req stockSearchRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "query is required"})
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	results := h.searcher.SearchStocks(r.Context(), req.Query, limit)
	rows := results.Collect(limit)
	instruments := make([]model.Instrument, 0, len(rows))
	for _, row := range rows {
		instruments = append(instruments, InstrumentFromRow(row))
	}
	if len(instruments) == 0 && results.Err() != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: results.Err().Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stockSearchResponse{
		Results: instruments,
		Partial: results.Err() != nil,
	})
}

// Either underlying_id (the catalog product id) or underlying (free text,
// resolved to one instrument) selects the underlying.
type leveragedSearchRequest struct {
	UnderlyingID   int64   `json:"underlying_id"`
	Underlying     string  `json:"underlying"`
	Action         string  `json:"action"`
	MinLeverage    float64 `json:"min_leverage"`
	MaxLeverage    float64 `json:"max_leverage"`
	TargetLeverage float64 `json:"target_leverage"`
	Subtype        string  `json:"product_subtype"`
	Limit          int     `json:"limit"`
}

type leveragedSearchResponse struct {
	Underlying *model.Instrument           `json:"underlying,omitempty"`
	Results    []model.LeveragedInstrument `json:"results"`
}

func (h *Handler) SearchLeveraged(w http.ResponseWriter, r *http.Request) {
	var req leveragedSearchRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.UnderlyingID <= 0 && strings.TrimSpace(req.Underlying) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "underlying_id or underlying is required"})
		return
	}
	direction := types.Direction(strings.ToUpper(req.Action))
	if !direction.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "action must be LONG or SHORT"})
		return
	}
	if req.MinLeverage < 0 || req.MaxLeverage < req.MinLeverage {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid leverage range"})
		return
	}
	subtype := types.ProductSubtype(strings.ToUpper(req.Subtype))
	if req.Subtype == "" {
		subtype = types.SubtypeAll
	}

	underlyingID := req.UnderlyingID
	var underlying *model.Instrument
	if underlyingID <= 0 {
		resolved, err := h.resolver.Resolve(r.Context(), req.Underlying)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		if resolved == nil {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "no instrument matches the underlying query"})
			return
		}
		id, err := strconv.ParseInt(resolved.ID, 10, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "underlying has a non-numeric product id"})
			return
		}
		underlying = resolved
		underlyingID = id
	}

	matches, err := h.searcher.SearchLeveraged(r.Context(), LeveragedCriteria{
		UnderlyingID:   underlyingID,
		Direction:      direction,
		MinLeverage:    req.MinLeverage,
		MaxLeverage:    req.MaxLeverage,
		TargetLeverage: req.TargetLeverage,
		Subtype:        subtype,
		Limit:          req.Limit,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, leveragedSearchResponse{
		Underlying: underlying,
		Results:    matches,
	})
}
