package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenId is the opaque stable identifier for one outcome token. The wire
// format is a large integer string; callers never parse it numerically.
type TokenId string

// Level is a single price/size pair on one side of a book. Size is always
// non-negative; a Level with zero size represents "no liquidity here" and is
// never retained in a ladder.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Urgency is an opaque priority tag threaded through a Signal. The core never
// interprets it; an OrderSubmitter implementation may map it to an order-type
// choice.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// SignalKind tags the variant carried by a Signal.
type SignalKind int

const (
	SignalHold SignalKind = iota
	SignalCancel
	SignalBuy
	SignalSell
	SignalShutdown
)

func (k SignalKind) String() string {
	switch k {
	case SignalHold:
		return "hold"
	case SignalCancel:
		return "cancel"
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	case SignalShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Signal is the closed sum type a Strategy emits on each tick: Hold,
// Cancel{token_id}, Buy{token_id,price,size,urgency}, Sell{...}, or
// Shutdown{reason}. Constructed only through the helpers below so the Kind
// and payload fields always agree.
type Signal struct {
	Kind    SignalKind
	TokenID TokenId
	Price   decimal.Decimal
	Size    decimal.Decimal
	Urgency Urgency
	Reason  string
}

func Hold() Signal { return Signal{Kind: SignalHold} }

func Cancel(token TokenId) Signal {
	return Signal{Kind: SignalCancel, TokenID: token}
}

func Buy(token TokenId, price, size decimal.Decimal, urgency Urgency) Signal {
	return Signal{Kind: SignalBuy, TokenID: token, Price: price, Size: size, Urgency: urgency}
}

func Sell(token TokenId, price, size decimal.Decimal, urgency Urgency) Signal {
	return Signal{Kind: SignalSell, TokenID: token, Price: price, Size: size, Urgency: urgency}
}

func Shutdown(reason string) Signal {
	return Signal{Kind: SignalShutdown, Reason: reason}
}

// WithSize returns a copy of the signal with a new size, used by the risk
// manager to reduce a Buy/Sell without disturbing its side or urgency.
func (s Signal) WithSize(size decimal.Decimal) Signal {
	s.Size = size
	return s
}

// IsBuy / IsSell report the trading side of a Buy/Sell signal.
func (s Signal) IsBuy() bool  { return s.Kind == SignalBuy }
func (s Signal) IsSell() bool { return s.Kind == SignalSell }

// OrderStatus is the lifecycle state of a tracked order. Transitions are
// monotonic along Pending -> Open -> (PartiallyFilled)* -> {Filled,Cancelled,Rejected}.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderOpen
	OrderPartiallyFilled
	OrderFilled
	OrderCancelled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderOpen:
		return "open"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	case OrderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// TrackedOrder is the OrderManager's in-memory record of a submitted order.
type TrackedOrder struct {
	ID          string
	TokenID     TokenId
	IsBuy       bool
	Price       decimal.Decimal
	Size        decimal.Decimal
	FilledSize  decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	ReservationID string
}

// Fill is an immutable execution event.
type Fill struct {
	OrderID   string
	TokenID   TokenId
	IsBuy     bool
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
	Fee       decimal.Decimal
}

// MarketCtx is the per-token metadata a strategy reasons about: question
// text, outcome label, expiry, and liquidity, as surfaced from market
// discovery. Distinct from the Gamma-API-shaped MarketInfo in types.go, which is
// the scanner's wire-adjacent representation before it is folded into a
// per-token view.
type MarketCtx struct {
	Question         string
	Outcome          string
	Slug             string
	ConditionID      string // CTF condition ID; used to subscribe the user WS channel
	EndDate          *time.Time
	Liquidity        *decimal.Decimal
	HoursUntilExpiry *float64
}

// MarketEvent is published by the MarketDataHub's broadcast stream.
type MarketEventKind int

const (
	EventBookUpdate MarketEventKind = iota
	EventTrade
)

type MarketEvent struct {
	Kind      MarketEventKind
	TokenID   TokenId
	Book      *BookSnapshot // set when Kind == EventBookUpdate
	Price     decimal.Decimal
	Size      decimal.Decimal
	IsBuy     bool
	Timestamp time.Time
}

// BookSnapshot is the decimal-native full-depth replacement delivered by a
// BookFeed subscription; it is distinct from the string-priced wire
// OrderBookSnapshot in types.go, which market.Book keeps.
type BookSnapshot struct {
	TokenID   TokenId
	Bids      []Level // descending by price
	Asks      []Level // ascending by price
	Hash      string
	Timestamp time.Time
}
