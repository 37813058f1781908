package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultSearchURL    = "https://trader.degiro.nl/product_search/secure"
	defaultTradingURL   = "https://trader.degiro.nl/trading/secure"
	defaultQuotecastURL = "https://degiro.quotecast.vwdservices.com/CORS"
)

type Config struct {
	HTTPAddr string
	DBDSN    string

	SearchURL    string
	TradingURL   string
	QuotecastURL string
	UserToken    string
	IntAccount   int64
	SessionID    string

	APIKey        string
	APIKeyHash    string
	JWTIssuer     string
	JWTSecret     string
	JWTTTL        time.Duration
	InternalToken string

	SlippageBuffer decimal.Decimal
}

// brokerFile is the on-disk broker credential object. Only int_account and
// user_token are consumed; the login fields belong to an external login
// flow and are ignored here.
type brokerFile struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TOTPSecretKey string `json:"totp_secret_key"`
	IntAccount    int64  `json:"int_account"`
	UserToken     string `json:"user_token"`
}

// Load reads the connector configuration from BROKER_CONFIG_PATH (optional
// JSON file) and the environment, with env vars overriding the file. The
// database and API auth are optional so catalog endpoints and tests run
// without them; order placement and quotes fail at call time with a clear
// error instead.
func Load() (Config, error) {
	var c Config
	var missing []string

	port := envOr("API_PORT", "7731")
	c.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	c.DBDSN = os.Getenv("DB_DSN")

	c.SearchURL = envOr("BROKER_SEARCH_URL", defaultSearchURL)
	c.TradingURL = envOr("BROKER_TRADING_URL", defaultTradingURL)
	c.QuotecastURL = envOr("QUOTECAST_URL", defaultQuotecastURL)

	if path := os.Getenv("BROKER_CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read BROKER_CONFIG_PATH: %w", err)
		}
		var bf brokerFile
		if err := json.Unmarshal(raw, &bf); err != nil {
			return c, fmt.Errorf("parse BROKER_CONFIG_PATH: %w", err)
		}
		c.UserToken = bf.UserToken
		c.IntAccount = bf.IntAccount
	}
	if v := os.Getenv("BROKER_USER_TOKEN"); v != "" {
		c.UserToken = v
	}
	if c.UserToken == "" {
		missing = append(missing, "BROKER_USER_TOKEN")
	}
	if raw := strings.TrimSpace(os.Getenv("BROKER_INT_ACCOUNT")); raw != "" {
		intAccount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, errors.New("invalid BROKER_INT_ACCOUNT")
		}
		c.IntAccount = intAccount
	}
	c.SessionID = os.Getenv("BROKER_SESSION_ID")

	c.APIKey = os.Getenv("TRADING_API_KEY")
	c.APIKeyHash = os.Getenv("TRADING_API_KEY_HASH")
	c.JWTIssuer = envOr("JWT_ISSUER", "degiro-connector")
	c.JWTSecret = os.Getenv("JWT_SECRET")
	jwtTTL := envOr("JWT_TTL", "1h")
	d, err := time.ParseDuration(jwtTTL)
	if err != nil {
		return c, errors.New("invalid JWT_TTL")
	}
	c.JWTTTL = d
	if (c.APIKeyHash != "" || c.APIKey != "") && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")

	slippageRaw := envOr("SLIPPAGE_BUFFER", "0.02")
	slippage, err := decimal.NewFromString(slippageRaw)
	if err != nil || slippage.IsNegative() {
		return c, errors.New("invalid SLIPPAGE_BUFFER")
	}
	c.SlippageBuffer = slippage

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
