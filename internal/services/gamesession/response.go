package gamesession

import "github.com/shopspring/decimal"

// Provider result codes. Code 4 doubles as "invalid command" and
// "insufficient balance to roll back a win", as the provider defines it.
const (
	CodeOK                  = 0
	CodeInternal            = 1
	CodeNotFound            = 2
	CodeInsufficientBalance = 3
	CodeInvalidCommand      = 4
	CodeRollbackShortfall   = 4
	CodeInvalidRollback     = 5
)

// Amount marshals as a bare JSON number with two decimals.
type Amount decimal.Decimal

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

func amountPtr(d decimal.Decimal) *Amount {
	a := Amount(d)
	return &a
}

// Response is the provider reply body. Result only reports that the callback
// was handled; the outcome is in ErrCode.
type Response struct {
	Result        bool    `json:"result"`
	ErrCode       int     `json:"err_code"`
	ErrDesc       string  `json:"err_desc"`
	Balance       *Amount `json:"balance,omitempty"`
	BeforeBalance *Amount `json:"before_balance,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`

	Currency    string `json:"currency,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	Country     string `json:"country,omitempty"`
	City        string `json:"city,omitempty"`
	Email       string `json:"email,omitempty"`
}

func ok(before, after decimal.Decimal, txID string) *Response {
	return &Response{
		Result:        true,
		ErrCode:       CodeOK,
		ErrDesc:       "OK",
		Balance:       amountPtr(after),
		BeforeBalance: amountPtr(before),
		TransactionID: txID,
	}
}

// failure is still a handled reply: result stays true and err_code carries
// the business outcome.
func failure(code int, desc string) *Response {
	return &Response{Result: true, ErrCode: code, ErrDesc: desc}
}

// withBalance attaches the current balance to a failure so the provider can
// show it to the player.
func (r *Response) withBalance(bal decimal.Decimal) *Response {
	r.Balance = amountPtr(bal)
	r.BeforeBalance = amountPtr(bal)
	return r
}
