package orders

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

type Handler struct {
	svc      *Service
	slippage decimal.Decimal
}

func NewHandler(svc *Service, slippage decimal.Decimal) *Handler {
	if !slippage.GreaterThan(decimal.Zero) {
		slippage = defaultSlippage
	}
	return &Handler{svc: svc, slippage: slippage}
}

type checkOrderRequest struct {
	ProductID string `json:"product_id"`
	Action    string `json:"action"`
	OrderType string `json:"order_type"`
	TimeType  string `json:"time_type"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	StopPrice string `json:"stop_price"`

	// Sizing mode: when quantity is omitted, derive it from a cash
	// budget and a reference price. A LIMIT draft without an explicit
	// price also gets its limit derived from the reference price.
	TargetAmount   string `json:"target_amount"`
	ReferencePrice string `json:"reference_price"`
}

type checkOrderResponse struct {
	State          string   `json:"state"`
	ConfirmationID string   `json:"confirmation_id,omitempty"`
	TransactionFee string   `json:"transaction_fee,omitempty"`
	FreeSpaceNew   string   `json:"free_space_new,omitempty"`
	Quantity       string   `json:"quantity"`
	Price          string   `json:"price,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	draft, err := h.draftFromRequest(req)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	outcome, err := h.svc.Check(r.Context(), draft)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	resp := checkOrderResponse{
		State:          string(outcome.State),
		ConfirmationID: outcome.ConfirmationID,
		Quantity:       draft.Quantity.String(),
		Reasons:        outcome.Reasons,
	}
	if draft.Price != nil {
		resp.Price = draft.Price.String()
	}
	if outcome.TransactionFee != nil {
		resp.TransactionFee = outcome.TransactionFee.String()
	}
	if outcome.FreeSpaceNew != nil {
		resp.FreeSpaceNew = outcome.FreeSpaceNew.String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type placeOrderRequest struct {
	ConfirmationID string `json:"confirmation_id"`
}

type placeOrderResponse struct {
	State   string   `json:"state"`
	OrderID string   `json:"order_id,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.ConfirmationID) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "confirmation_id is required"})
		return
	}
	outcome, err := h.svc.Confirm(r.Context(), req.ConfirmationID)
	if err != nil {
		if errors.Is(err, broker.ErrConfirmationMismatch) {
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		writeBrokerError(w, err)
		return
	}
	status := http.StatusCreated
	if outcome.State == types.OrderStateRejected {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, placeOrderResponse{
		State:   string(outcome.State),
		OrderID: outcome.OrderID,
		Reasons: outcome.Reasons,
	})
}

func (h *Handler) draftFromRequest(req checkOrderRequest) (broker.OrderDraft, error) {
	draft := broker.OrderDraft{
		ProductID: strings.TrimSpace(req.ProductID),
		Action:    types.OrderAction(strings.ToUpper(req.Action)),
		OrderType: types.OrderType(strings.ToUpper(req.OrderType)),
		TimeType:  types.TimeTypeDay,
	}
	if req.TimeType != "" {
		draft.TimeType = types.TimeType(strings.ToUpper(req.TimeType))
	}
	var refPrice *decimal.Decimal
	if req.ReferencePrice != "" {
		p, err := decimal.NewFromString(req.ReferencePrice)
		if err != nil {
			return broker.OrderDraft{}, errors.New("invalid reference_price")
		}
		refPrice = &p
	}
	switch {
	case req.Quantity != "":
		q, err := decimal.NewFromString(req.Quantity)
		if err != nil {
			return broker.OrderDraft{}, errors.New("invalid quantity")
		}
		draft.Quantity = q
	case req.TargetAmount != "":
		if refPrice == nil {
			return broker.OrderDraft{}, errors.New("target_amount requires reference_price")
		}
		amount, err := decimal.NewFromString(req.TargetAmount)
		if err != nil {
			return broker.OrderDraft{}, errors.New("invalid target_amount")
		}
		draft.Quantity = SizeQuantity(amount, *refPrice)
	default:
		return broker.OrderDraft{}, errors.New("quantity or target_amount is required")
	}
	if req.Price != "" {
		p, err := decimal.NewFromString(req.Price)
		if err != nil {
			return broker.OrderDraft{}, errors.New("invalid price")
		}
		draft.Price = &p
	} else if refPrice != nil && draft.OrderType.RequiresPrice() {
		p := LimitPrice(*refPrice, draft.Action, h.slippage)
		draft.Price = &p
	}
	if req.StopPrice != "" {
		p, err := decimal.NewFromString(req.StopPrice)
		if err != nil {
			return broker.OrderDraft{}, errors.New("invalid stop_price")
		}
		draft.StopPrice = &p
	}
	return draft, nil
}

// defaultSlippage is the buffer applied to derived limit prices.
var defaultSlippage = decimal.NewFromFloat(0.02)

func writeBrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrAuthExpired), errors.Is(err, broker.ErrSessionUnavailable):
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, broker.ErrRateLimited):
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
