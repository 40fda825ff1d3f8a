package gateway

import "encoding/json"

// Redirect modes accepted in the pay request.
const (
	RedirectModePOST     = "POST"
	InstrumentPayPage    = "PAY_PAGE"
	headerVerify         = "X-VERIFY"
	headerMerchantID     = "X-MERCHANT-ID"
	maxResponseBodyBytes = 1 << 20
)

// PayRequest is the JSON document that is base64-encoded into the pay envelope.
type PayRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber"`
	PaymentInstrument     PaymentInstrument `json:"paymentInstrument"`
}

type PaymentInstrument struct {
	Type string `json:"type"`
}

type payEnvelope struct {
	Request string `json:"request"`
}

// envelope is the common response shape for pay and status calls.
type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		Type         string `json:"type"`
		RedirectInfo struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

// InitiateRequest carries what the caller decides about one payment attempt.
// AmountMinor is in paise.
type InitiateRequest struct {
	TransactionID  string
	MerchantUserID string
	AmountMinor    int64
	Mobile         string
}

// InitiateResult is where the browser must be sent to pay.
type InitiateResult struct {
	RedirectURL   string
	TransactionID string
}

// StatusResult is the gateway's answer for one transaction. A non-success
// code is data, not an error.
type StatusResult struct {
	TransactionID string
	Success       bool
	Code          string
	Message       string
	State         string
	AmountMinor   int64
	// GatewayTransactionID is the gateway's own reference, when present.
	GatewayTransactionID string
	RawData              json.RawMessage
}

type statusData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}
