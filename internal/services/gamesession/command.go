package gamesession

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
)

// Command is one of Withdraw, Deposit, Rollback or GetInfo.
type Command interface {
	Name() string
	Token() string
}

// Withdraw places a wager.
type Withdraw struct {
	PlayerToken   string
	TransactionID string
	RoundID       string
	GameID        string
	Currency      string
	Amount        decimal.Decimal
	BetInfo       json.RawMessage
}

// Deposit pays out a win.
type Deposit struct {
	PlayerToken   string
	TransactionID string
	RoundID       string
	GameID        string
	Currency      string
	Amount        decimal.Decimal
	BetInfo       json.RawMessage
}

// Rollback reverses an earlier wager or win identified by its transaction id.
type Rollback struct {
	PlayerToken   string
	TransactionID string
	RoundID       string
	GameID        string
}

// GetInfo covers getPlayerInfo and getBalance.
type GetInfo struct {
	Cmd         string
	PlayerToken string
	Currency    string
}

func (Withdraw) Name() string    { return "withdraw" }
func (Deposit) Name() string     { return "deposit" }
func (Rollback) Name() string    { return "rollback" }
func (c GetInfo) Name() string   { return c.Cmd }
func (c Withdraw) Token() string { return c.PlayerToken }
func (c Deposit) Token() string  { return c.PlayerToken }
func (c Rollback) Token() string { return c.PlayerToken }
func (c GetInfo) Token() string  { return c.PlayerToken }

// flexString accepts either a JSON string or a number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var v string
		err := json.Unmarshal(b, &v)
		if err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}

	var n json.Number
	err := json.Unmarshal(b, &n)
	if err != nil {
		return err
	}
	*s = flexString(n.String())

	return nil
}

type envelope struct {
	Cmd           string              `json:"cmd"`
	PlayerToken   string              `json:"player_token"`
	TransactionID flexString          `json:"transactionId"`
	RoundID       flexString          `json:"roundId"`
	GameID        flexString          `json:"gameId"`
	CurrencyID    string              `json:"currencyId"`
	BetAmount     decimal.NullDecimal `json:"betAmount"`
	WinAmount     decimal.NullDecimal `json:"winAmount"`
	Amount        decimal.NullDecimal `json:"amount"`
	BetInfo       json.RawMessage     `json:"betInfo"`
}

// Decode parses a provider callback into its command variant.
func Decode(body []byte) (Command, error) {
	var env envelope

	err := json.Unmarshal(body, &env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch strings.TrimSpace(env.Cmd) {
	case "withdraw":
		amount, err := pickAmount(env.BetAmount, env.Amount)
		if err != nil {
			return nil, err
		}
		if env.TransactionID == "" {
			return nil, fmt.Errorf("%w: transactionId is required", ErrMalformedCommand)
		}

		return Withdraw{
			PlayerToken:   env.PlayerToken,
			TransactionID: string(env.TransactionID),
			RoundID:       string(env.RoundID),
			GameID:        string(env.GameID),
			Currency:      env.CurrencyID,
			Amount:        amount,
			BetInfo:       env.BetInfo,
		}, nil

	case "deposit":
		amount, err := pickAmount(env.WinAmount, env.Amount)
		if err != nil {
			return nil, err
		}
		if env.TransactionID == "" {
			return nil, fmt.Errorf("%w: transactionId is required", ErrMalformedCommand)
		}

		return Deposit{
			PlayerToken:   env.PlayerToken,
			TransactionID: string(env.TransactionID),
			RoundID:       string(env.RoundID),
			GameID:        string(env.GameID),
			Currency:      env.CurrencyID,
			Amount:        amount,
			BetInfo:       env.BetInfo,
		}, nil

	case "rollback":
		if env.TransactionID == "" {
			return nil, fmt.Errorf("%w: transactionId is required", ErrMalformedCommand)
		}

		return Rollback{
			PlayerToken:   env.PlayerToken,
			TransactionID: string(env.TransactionID),
			RoundID:       string(env.RoundID),
			GameID:        string(env.GameID),
		}, nil

	case "getPlayerInfo", "getBalance":
		return GetInfo{Cmd: env.Cmd, PlayerToken: env.PlayerToken, Currency: env.CurrencyID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Cmd)
	}
}

func pickAmount(primary, fallback decimal.NullDecimal) (decimal.Decimal, error) {
	amount := decimal.Zero
	switch {
	case primary.Valid:
		amount = primary.Decimal
	case fallback.Valid:
		amount = fallback.Decimal
	}

	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", ErrMalformedCommand)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return decimal.Zero, fmt.Errorf("%w: amount supports up to 2 decimals", ErrMalformedCommand)
	}

	return amount, nil
}
