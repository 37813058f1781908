package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

// Client talks to the broker's trading REST API: catalog search, batch
// product metadata, and the order check/confirm pair. One Client (and the
// one session inside it) is shared by every component in the process.
type Client struct {
	http       *http.Client
	searchURL  string
	tradingURL string
	sessions   *sessionHolder
}

func NewClient(searchURL, tradingURL string, source SessionSource) *Client {
	return &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		searchURL:  searchURL,
		tradingURL: tradingURL,
		sessions:   newSessionHolder(source),
	}
}

// StocksQuery is one page request against the stock catalog.
type StocksQuery struct {
	SearchText   string
	Offset       int
	Limit        int
	SortColumns  string
	SortTypes    string
	RequireTotal bool
}

// LeveragedsQuery is one page request against the leveraged-product catalog.
// The endpoint filters by underlying and direction server-side; leverage
// ranges have to be filtered by the caller.
type LeveragedsQuery struct {
	SearchText          string
	Offset              int
	Limit               int
	SortColumns         string
	SortTypes           string
	RequireTotal        bool
	UnderlyingProductID int64
	ShortLong           string
	PopularOnly         bool
}

// ProductRow is a raw catalog row. Leveraged-only fields stay zero for
// plain stocks.
type ProductRow struct {
	ID                   json.Number `json:"id"`
	Name                 string      `json:"name"`
	ISIN                 string      `json:"isin"`
	Symbol               string      `json:"symbol"`
	Currency             string      `json:"currency"`
	ExchangeID           json.Number `json:"exchangeId"`
	Tradable             bool        `json:"tradable"`
	Leverage             float64     `json:"leverage"`
	ShortLong            string      `json:"shortlong"`
	ExpirationDate       string      `json:"expirationDate"`
	QuoteFeedID          string      `json:"vwdId"`
	QuoteFeedIDSecondary string      `json:"vwdIdSecondary"`
}

type SearchPage struct {
	Products []ProductRow `json:"products"`
	Total    int          `json:"total"`
}

// OrderDraft is the broker-facing shape of an order.
type OrderDraft struct {
	ProductID string
	Action    types.OrderAction
	OrderType types.OrderType
	TimeType  types.TimeType
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
}

// CheckResult is the broker's answer to an order validation.
type CheckResult struct {
	ConfirmationID string
	TransactionFee *decimal.Decimal
	FreeSpaceNew   *decimal.Decimal
}

type ConfirmResult struct {
	OrderID string
}

func (c *Client) SearchStocks(ctx context.Context, q StocksQuery) (SearchPage, error) {
	var page SearchPage
	err := c.withSession(ctx, func(s Session) error {
		params := c.baseParams(s)
		params.Set("searchText", q.SearchText)
		params.Set("offset", strconv.Itoa(q.Offset))
		params.Set("limit", strconv.Itoa(q.Limit))
		if q.SortColumns != "" {
			params.Set("sortColumns", q.SortColumns)
			params.Set("sortTypes", q.SortTypes)
		}
		if q.RequireTotal {
			params.Set("requireTotal", "true")
		}
		return c.getJSON(ctx, c.searchURL+"/v5/products/stocks?"+params.Encode(), &page)
	})
	return page, err
}

func (c *Client) SearchLeverageds(ctx context.Context, q LeveragedsQuery) (SearchPage, error) {
	var page SearchPage
	err := c.withSession(ctx, func(s Session) error {
		params := c.baseParams(s)
		params.Set("searchText", q.SearchText)
		params.Set("offset", strconv.Itoa(q.Offset))
		params.Set("limit", strconv.Itoa(q.Limit))
		params.Set("popularOnly", strconv.FormatBool(q.PopularOnly))
		if q.SortColumns != "" {
			params.Set("sortColumns", q.SortColumns)
			params.Set("sortTypes", q.SortTypes)
		}
		if q.RequireTotal {
			params.Set("requireTotal", "true")
		}
		if q.UnderlyingProductID != 0 {
			params.Set("underlyingProductId", strconv.FormatInt(q.UnderlyingProductID, 10))
		}
		if q.ShortLong != "" {
			params.Set("shortLong", q.ShortLong)
		}
		return c.getJSON(ctx, c.searchURL+"/v5/products/leverageds?"+params.Encode(), &page)
	})
	return page, err
}

// ProductsInfo batch-resolves metadata for the given instrument ids. The
// response is keyed by id; ids the broker does not know are simply absent.
func (c *Client) ProductsInfo(ctx context.Context, ids []string) (map[string]ProductRow, error) {
	var out struct {
		Data map[string]ProductRow `json:"data"`
	}
	err := c.withSession(ctx, func(s Session) error {
		body, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return c.postJSON(ctx, c.searchURL+"/v5/products/info?"+c.baseParams(s).Encode(), body, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	return out.Data, nil
}

func (c *Client) CheckOrder(ctx context.Context, draft OrderDraft) (CheckResult, error) {
	var out struct {
		Data struct {
			ConfirmationID string           `json:"confirmationId"`
			TransactionFee *decimal.Decimal `json:"transactionFee"`
			FreeSpaceNew   *decimal.Decimal `json:"freeSpaceNew"`
		} `json:"data"`
	}
	err := c.withSession(ctx, func(s Session) error {
		body, err := json.Marshal(orderPayload(draft))
		if err != nil {
			return err
		}
		endpoint := c.tradingURL + "/v5/checkOrder;jsessionid=" + url.PathEscape(s.ID) + "?" + c.baseParams(s).Encode()
		return c.postJSON(ctx, endpoint, body, &out)
	})
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{
		ConfirmationID: out.Data.ConfirmationID,
		TransactionFee: out.Data.TransactionFee,
		FreeSpaceNew:   out.Data.FreeSpaceNew,
	}, nil
}

// ConfirmOrder commits a previously checked order. The confirmation id must
// be exactly the one issued by CheckOrder for the same draft; the broker
// rejects anything else.
func (c *Client) ConfirmOrder(ctx context.Context, confirmationID string, draft OrderDraft) (ConfirmResult, error) {
	var out struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	err := c.withSession(ctx, func(s Session) error {
		body, err := json.Marshal(orderPayload(draft))
		if err != nil {
			return err
		}
		endpoint := c.tradingURL + "/v5/order/" + url.PathEscape(confirmationID) +
			";jsessionid=" + url.PathEscape(s.ID) + "?" + c.baseParams(s).Encode()
		err = c.postJSON(ctx, endpoint, body, &out)
		var vErr *ValidationError
		if errors.As(err, &vErr) && confirmationRejected(vErr.Reasons) {
			return fmt.Errorf("%w: %s", ErrConfirmationMismatch, vErr.Error())
		}
		return err
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{OrderID: out.Data.OrderID}, nil
}

// confirmationRejected reports whether the broker's rejection points at a
// stale or foreign confirmation id rather than at the order itself. Any
// other rejection stays a ValidationError so callers can surface it as a
// rejected outcome.
func confirmationRejected(reasons []string) bool {
	for _, reason := range reasons {
		if strings.Contains(strings.ToLower(reason), "confirmation") {
			return true
		}
	}
	return false
}

// withSession runs op with the shared session, rebuilding it once when the
// failure classifies as an expired session. Two attempts total, never more.
func (c *Client) withSession(ctx context.Context, op func(Session) error) error {
	return WithRetry(2, func(attempt int) error {
		var s Session
		var err error
		if attempt == 0 {
			s, err = c.sessions.get(ctx)
		} else {
			s, err = c.sessions.replace(ctx)
		}
		if err != nil {
			return err
		}
		return op(s)
	}, IsAuthExpired)
}

func (c *Client) baseParams(s Session) url.Values {
	params := url.Values{}
	params.Set("intAccount", strconv.FormatInt(s.IntAccount, 10))
	params.Set("sessionId", s.ID)
	return params
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthExpired, string(raw))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, string(raw))
	case resp.StatusCode == http.StatusBadRequest:
		if reasons := decodeReasons(raw); len(reasons) > 0 {
			return &ValidationError{Reasons: reasons}
		}
		return fmt.Errorf("broker rejected request: %s", string(raw))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		text := string(raw)
		if ClassifyError(text) == KindAuthExpired {
			return fmt.Errorf("%w: %s", ErrAuthExpired, text)
		}
		return fmt.Errorf("broker request failed: status %d: %s", resp.StatusCode, text)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeReasons(raw []byte) []string {
	var payload struct {
		Errors []struct {
			Text string `json:"text"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	reasons := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		if e.Text != "" {
			reasons = append(reasons, e.Text)
		}
	}
	return reasons
}

// Broker order-type and time-type codes.
var orderTypeCodes = map[types.OrderType]int{
	types.OrderTypeLimit:     0,
	types.OrderTypeStopLimit: 1,
	types.OrderTypeMarket:    2,
	types.OrderTypeStopLoss:  3,
}

var timeTypeCodes = map[types.TimeType]int{
	types.TimeTypeDay: 1,
	types.TimeTypeGTC: 3,
}

func orderPayload(d OrderDraft) map[string]any {
	payload := map[string]any{
		"buySell":   string(d.Action),
		"orderType": orderTypeCodes[d.OrderType],
		"productId": d.ProductID,
		"size":      d.Quantity,
		"timeType":  timeTypeCodes[d.TimeType],
	}
	if d.Price != nil {
		payload["price"] = *d.Price
	}
	if d.StopPrice != nil {
		payload["stopPrice"] = *d.StopPrice
	}
	return payload
}
