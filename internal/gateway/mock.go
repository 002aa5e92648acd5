package gateway

import "context"

// Mock answers locally so the service can run without gateway credentials.
type Mock struct{}

var _ Gateway = Mock{}

func (Mock) CreateInvoice(_ context.Context, req InvoiceRequest) (*Invoice, error) {
	return &Invoice{
		OrderID:        "mock_" + req.MerchantOrderID,
		PaymentURL:     "https://mock-payment.local/pay/" + req.MerchantOrderID,
		PaymentAddress: "TMockAddress123456789",
	}, nil
}

func (Mock) CreatePayout(_ context.Context, req PayoutRequest) (*Payout, error) {
	return &Payout{
		OrderID: "mock_" + req.MerchantOrderID,
		Status:  "processing",
	}, nil
}
