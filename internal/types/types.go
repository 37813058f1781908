package types

type Direction string

type ProductSubtype string

type OrderAction string

type OrderType string

type OrderState string

type TimeType string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

const (
	SubtypeAll       ProductSubtype = "ALL"
	SubtypeCallPut   ProductSubtype = "CALL_PUT"
	SubtypeMini      ProductSubtype = "MINI"
	SubtypeUnlimited ProductSubtype = "UNLIMITED"
	SubtypeUnknown   ProductSubtype = "UNKNOWN"
)

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

const (
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeStopLoss  OrderType = "STOP_LOSS"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

const (
	OrderStateDraft     OrderState = "DRAFT"
	OrderStateChecked   OrderState = "CHECKED"
	OrderStateConfirmed OrderState = "CONFIRMED"
	OrderStateRejected  OrderState = "REJECTED"
)

const (
	TimeTypeDay TimeType = "DAY"
	TimeTypeGTC TimeType = "GTC"
)

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

func (a OrderAction) Valid() bool {
	return a == OrderActionBuy || a == OrderActionSell
}

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeLimit, OrderTypeMarket, OrderTypeStopLoss, OrderTypeStopLimit:
		return true
	default:
		return false
	}
}

func (t TimeType) Valid() bool {
	return t == TimeTypeDay || t == TimeTypeGTC
}

// RequiresPrice reports whether the order type needs a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether the order type needs a stop price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStopLoss || t == OrderTypeStopLimit
}
