package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/broker"
	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

type fakeBroker struct {
	checkResult   broker.CheckResult
	checkErr      error
	confirmResult broker.ConfirmResult
	confirmErr    error
	checkCalls    int
	confirmCalls  int
	lastConfirmID string
}

func (f *fakeBroker) CheckOrder(context.Context, broker.OrderDraft) (broker.CheckResult, error) {
	f.checkCalls++
	return f.checkResult, f.checkErr
}

func (f *fakeBroker) ConfirmOrder(_ context.Context, confirmationID string, _ broker.OrderDraft) (broker.ConfirmResult, error) {
	f.confirmCalls++
	f.lastConfirmID = confirmationID
	return f.confirmResult, f.confirmErr
}

func limitDraft() broker.OrderDraft {
	price := decimal.NewFromFloat(48.30)
	return broker.OrderDraft{
		ProductID: "1001",
		Action:    types.OrderActionBuy,
		OrderType: types.OrderTypeLimit,
		TimeType:  types.TimeTypeDay,
		Quantity:  decimal.NewFromInt(5),
		Price:     &price,
	}
}

func TestCheckStoresTicket(t *testing.T) {
	fee := decimal.NewFromFloat(2.5)
	fb := &fakeBroker{checkResult: broker.CheckResult{ConfirmationID: "conf-1", TransactionFee: &fee}}
	svc := NewService(fb, NewStore())

	outcome, err := svc.Check(context.Background(), limitDraft())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if outcome.State != types.OrderStateChecked {
		t.Fatalf("state = %s, want CHECKED", outcome.State)
	}
	if outcome.ConfirmationID != "conf-1" {
		t.Fatalf("confirmation id = %q", outcome.ConfirmationID)
	}
	if outcome.TransactionFee == nil || !outcome.TransactionFee.Equal(fee) {
		t.Fatalf("fee = %v, want 2.5", outcome.TransactionFee)
	}
}

func TestCheckLocalValidationSkipsBroker(t *testing.T) {
	fb := &fakeBroker{}
	svc := NewService(fb, NewStore())

	draft := limitDraft()
	draft.Price = nil // limit order without a price
	outcome, err := svc.Check(context.Background(), draft)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if outcome.State != types.OrderStateRejected {
		t.Fatalf("state = %s, want REJECTED", outcome.State)
	}
	if len(outcome.Reasons) == 0 {
		t.Fatal("expected rejection reasons")
	}
	if fb.checkCalls != 0 {
		t.Fatalf("broker called %d times for a locally invalid draft", fb.checkCalls)
	}
}

func TestCheckLocalValidationStopPrice(t *testing.T) {
	fb := &fakeBroker{}
	svc := NewService(fb, NewStore())

	draft := limitDraft()
	draft.OrderType = types.OrderTypeStopLoss
	draft.Price = nil
	outcome, err := svc.Check(context.Background(), draft)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if outcome.State != types.OrderStateRejected {
		t.Fatalf("state = %s, want REJECTED without stop price", outcome.State)
	}
}

func TestCheckBrokerRejection(t *testing.T) {
	fb := &fakeBroker{checkErr: &broker.ValidationError{Reasons: []string{"insufficient funds"}}}
	svc := NewService(fb, NewStore())

	outcome, err := svc.Check(context.Background(), limitDraft())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if outcome.State != types.OrderStateRejected {
		t.Fatalf("state = %s, want REJECTED", outcome.State)
	}
	if len(outcome.Reasons) != 1 || outcome.Reasons[0] != "insufficient funds" {
		t.Fatalf("reasons = %v", outcome.Reasons)
	}
}

func TestConfirmHappyPath(t *testing.T) {
	fb := &fakeBroker{
		checkResult:   broker.CheckResult{ConfirmationID: "conf-1"},
		confirmResult: broker.ConfirmResult{OrderID: "order-9"},
	}
	svc := NewService(fb, NewStore())

	if _, err := svc.Check(context.Background(), limitDraft()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	outcome, err := svc.Confirm(context.Background(), "conf-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if outcome.State != types.OrderStateConfirmed {
		t.Fatalf("state = %s, want CONFIRMED", outcome.State)
	}
	if outcome.OrderID != "order-9" {
		t.Fatalf("order id = %q", outcome.OrderID)
	}
	if fb.lastConfirmID != "conf-1" {
		t.Fatalf("broker got confirmation id %q, want the checked one", fb.lastConfirmID)
	}
}

func TestConfirmUnknownIDNeverReachesBroker(t *testing.T) {
	fb := &fakeBroker{checkResult: broker.CheckResult{ConfirmationID: "conf-1"}}
	svc := NewService(fb, NewStore())

	if _, err := svc.Check(context.Background(), limitDraft()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	_, err := svc.Confirm(context.Background(), "tampered-id")
	if !errors.Is(err, broker.ErrConfirmationMismatch) {
		t.Fatalf("err = %v, want ErrConfirmationMismatch", err)
	}
	if fb.confirmCalls != 0 {
		t.Fatalf("broker confirm called %d times with a mismatched id", fb.confirmCalls)
	}
}

func TestConfirmTwiceIsAMismatch(t *testing.T) {
	fb := &fakeBroker{
		checkResult:   broker.CheckResult{ConfirmationID: "conf-1"},
		confirmResult: broker.ConfirmResult{OrderID: "order-9"},
	}
	svc := NewService(fb, NewStore())

	if _, err := svc.Check(context.Background(), limitDraft()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), "conf-1"); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	_, err := svc.Confirm(context.Background(), "conf-1")
	if !errors.Is(err, broker.ErrConfirmationMismatch) {
		t.Fatalf("second confirm err = %v, want ErrConfirmationMismatch", err)
	}
}

func TestConfirmBrokerRejection(t *testing.T) {
	fb := &fakeBroker{
		checkResult: broker.CheckResult{ConfirmationID: "conf-1"},
		confirmErr:  &broker.ValidationError{Reasons: []string{"market closed"}},
	}
	svc := NewService(fb, NewStore())

	if _, err := svc.Check(context.Background(), limitDraft()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	outcome, err := svc.Confirm(context.Background(), "conf-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if outcome.State != types.OrderStateRejected {
		t.Fatalf("state = %s, want REJECTED", outcome.State)
	}
	if len(outcome.Reasons) != 1 || outcome.Reasons[0] != "market closed" {
		t.Fatalf("reasons = %v", outcome.Reasons)
	}
}

func TestSizeQuantity(t *testing.T) {
	cases := []struct {
		amount string
		price  string
		want   string
	}{
		{"250", "48.30", "5"},
		{"100", "33.33", "3"},
		{"10", "48.30", "1"}, // floors to zero, clamped up
		{"0", "48.30", "1"},
		{"250", "0", "1"},
	}
	for _, tc := range cases {
		amount, _ := decimal.NewFromString(tc.amount)
		price, _ := decimal.NewFromString(tc.price)
		got := SizeQuantity(amount, price)
		if got.String() != tc.want {
			t.Fatalf("SizeQuantity(%s, %s) = %s, want %s", tc.amount, tc.price, got, tc.want)
		}
	}
}

func TestLimitPrice(t *testing.T) {
	ref := decimal.NewFromFloat(100)
	slip := decimal.NewFromFloat(0.02)
	if got := LimitPrice(ref, types.OrderActionBuy, slip); got.String() != "102" {
		t.Fatalf("buy limit = %s, want 102", got)
	}
	if got := LimitPrice(ref, types.OrderActionSell, slip); got.String() != "98" {
		t.Fatalf("sell limit = %s, want 98", got)
	}
}

func TestStoreExpiresTickets(t *testing.T) {
	store := NewStore()
	base := time.Now()
	store.now = func() time.Time { return base }
	store.Save(Ticket{ConfirmationID: "conf-1", State: types.OrderStateChecked})
	if _, ok := store.Get("conf-1"); !ok {
		t.Fatal("fresh ticket must be retrievable")
	}
	store.now = func() time.Time { return base.Add(defaultTicketTTL + time.Second) }
	if _, ok := store.Get("conf-1"); ok {
		t.Fatal("expired ticket must be gone")
	}
}
