package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

// BrokerClient is the slice of the broker API the order lifecycle needs.
type BrokerClient interface {
	CheckOrder(ctx context.Context, draft broker.OrderDraft) (broker.CheckResult, error)
	ConfirmOrder(ctx context.Context, confirmationID string, draft broker.OrderDraft) (broker.ConfirmResult, error)
}

type Service struct {
	broker BrokerClient
	store  *Store
}

func NewService(brokerClient BrokerClient, store *Store) *Service {
	return &Service{broker: brokerClient, store: store}
}

// CheckOutcome reports the result of order validation. A rejected draft
// carries reasons and no confirmation id; a checked one the reverse.
type CheckOutcome struct {
	State          types.OrderState
	ConfirmationID string
	TransactionFee *decimal.Decimal
	FreeSpaceNew   *decimal.Decimal
	Reasons        []string
}

type ConfirmOutcome struct {
	State   types.OrderState
	OrderID string
	Reasons []string
}

// Check validates a draft. Local validation runs first and short-circuits
// without touching the broker; only a locally clean draft is sent upstream.
func (s *Service) Check(ctx context.Context, draft broker.OrderDraft) (CheckOutcome, error) {
	if reasons := validateDraft(draft); len(reasons) > 0 {
		return CheckOutcome{State: types.OrderStateRejected, Reasons: reasons}, nil
	}
	res, err := s.broker.CheckOrder(ctx, draft)
	if err != nil {
		var vErr *broker.ValidationError
		if errors.As(err, &vErr) {
			return CheckOutcome{State: types.OrderStateRejected, Reasons: vErr.Reasons}, nil
		}
		return CheckOutcome{}, err
	}
	if res.ConfirmationID == "" {
		return CheckOutcome{}, errors.New("broker returned no confirmation id")
	}
	s.store.Save(Ticket{
		ConfirmationID: res.ConfirmationID,
		Draft:          draft,
		State:          types.OrderStateChecked,
		TransactionFee: res.TransactionFee,
		FreeSpaceNew:   res.FreeSpaceNew,
	})
	return CheckOutcome{
		State:          types.OrderStateChecked,
		ConfirmationID: res.ConfirmationID,
		TransactionFee: res.TransactionFee,
		FreeSpaceNew:   res.FreeSpaceNew,
	}, nil
}

// Confirm places the order behind a previously checked confirmation id.
// The id must match a stored ticket exactly; anything else is treated as
// a confirmation mismatch, never as a fresh validation failure.
func (s *Service) Confirm(ctx context.Context, confirmationID string) (ConfirmOutcome, error) {
	ticket, ok := s.store.Get(confirmationID)
	if !ok {
		return ConfirmOutcome{}, fmt.Errorf("unknown or expired confirmation id %q: %w", confirmationID, broker.ErrConfirmationMismatch)
	}
	if ticket.State != types.OrderStateChecked {
		return ConfirmOutcome{}, fmt.Errorf("ticket %q is %s, not confirmable: %w", confirmationID, ticket.State, broker.ErrConfirmationMismatch)
	}
	res, err := s.broker.ConfirmOrder(ctx, ticket.ConfirmationID, ticket.Draft)
	if err != nil {
		var vErr *broker.ValidationError
		if errors.As(err, &vErr) {
			ticket.State = types.OrderStateRejected
			ticket.Reasons = vErr.Reasons
			s.store.Update(ticket)
			return ConfirmOutcome{State: types.OrderStateRejected, Reasons: vErr.Reasons}, nil
		}
		return ConfirmOutcome{}, err
	}
	ticket.State = types.OrderStateConfirmed
	ticket.OrderID = res.OrderID
	s.store.Update(ticket)
	return ConfirmOutcome{State: types.OrderStateConfirmed, OrderID: res.OrderID}, nil
}

func validateDraft(draft broker.OrderDraft) []string {
	var reasons []string
	if draft.ProductID == "" {
		reasons = append(reasons, "product id is required")
	}
	if !draft.Action.Valid() {
		reasons = append(reasons, "invalid action")
	}
	if !draft.OrderType.Valid() {
		reasons = append(reasons, "invalid order type")
	}
	if !draft.TimeType.Valid() {
		reasons = append(reasons, "invalid time type")
	}
	if !draft.Quantity.GreaterThan(decimal.Zero) {
		reasons = append(reasons, "quantity must be positive")
	}
	if draft.OrderType.RequiresPrice() && (draft.Price == nil || !draft.Price.GreaterThan(decimal.Zero)) {
		reasons = append(reasons, "price is required for this order type")
	}
	if draft.OrderType.RequiresStopPrice() && (draft.StopPrice == nil || !draft.StopPrice.GreaterThan(decimal.Zero)) {
		reasons = append(reasons, "stop price is required for this order type")
	}
	return reasons
}

// SizeQuantity converts a cash budget into whole units at the reference
// price. Fractional units are not supported, and the result never drops
// below one unit so a funded request always produces an order.
func SizeQuantity(targetAmount, refPrice decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if !refPrice.GreaterThan(decimal.Zero) || !targetAmount.GreaterThan(decimal.Zero) {
		return one
	}
	qty := targetAmount.Div(refPrice).Floor()
	if qty.LessThan(one) {
		return one
	}
	return qty
}

// LimitPrice buffers the reference price against slippage: buys bid a
// little above the market, sells a little below, so a marginally moving
// quote does not strand the order.
func LimitPrice(refPrice decimal.Decimal, action types.OrderAction, slippage decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	factor := one.Add(slippage)
	if action == types.OrderActionSell {
		factor = one.Sub(slippage)
	}
	return refPrice.Mul(factor).Round(2)
}
