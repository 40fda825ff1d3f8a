// Package gatewaytest provides an in-process fake of the payment gateway for
// tests. It verifies request signatures the way the real gateway does.
package gatewaytest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"confreg/internal/payment/gateway"
	"confreg/internal/platform/config"
)

// Sandbox credentials used by the fake.
const (
	MerchantID = "MERCHANTTEST"
	SaltKey    = "test-salt-key"
	SaltIndex  = "1"
)

// Server is a fake gateway.
type Server struct {
	*httptest.Server

	signer *gateway.Signer

	mu       sync.Mutex
	payments map[string]gateway.PayRequest
	statuses map[string]string
	// payReject, when set, is returned as the code for every pay call.
	payReject string

	down        atomic.Bool
	statusCalls atomic.Int64
	payCalls    atomic.Int64
}

// NewServer starts a fake gateway. Call Close when done.
func NewServer() *Server {
	s := &Server{
		signer:   gateway.NewSigner(SaltKey, SaltIndex),
		payments: make(map[string]gateway.PayRequest),
		statuses: make(map[string]string),
	}
	r := chi.NewRouter()
	r.Post(gateway.PayPath, s.handlePay)
	r.Get(gateway.StatusPath+"/{merchantID}/{transactionID}", s.handleStatus)
	s.Server = httptest.NewServer(r)
	return s
}

// Config returns gateway settings pointing at the fake.
func (s *Server) Config() config.Gateway {
	return config.Gateway{
		MerchantID:  MerchantID,
		SaltKey:     SaltKey,
		SaltIndex:   SaltIndex,
		BaseURL:     s.URL,
		RedirectURL: "http://app.test/payment/redirect",
		CallbackURL: "http://app.test/payments/callback",
	}
}

// Signer returns a signer with the fake's credentials.
func (s *Server) Signer() *gateway.Signer {
	return s.signer
}

// SetStatus fixes the code the status endpoint reports for transactionID.
func (s *Server) SetStatus(transactionID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[transactionID] = code
}

// RejectPayments makes every pay call fail with code. Empty restores success.
func (s *Server) RejectPayments(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payReject = code
}

// SetDown makes every endpoint answer 503 with no body.
func (s *Server) SetDown(down bool) {
	s.down.Store(down)
}

// Payment returns the decoded pay request recorded for transactionID.
func (s *Server) Payment(transactionID string) (gateway.PayRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[transactionID]
	return p, ok
}

func (s *Server) StatusCalls() int64 { return s.statusCalls.Load() }
func (s *Server) PayCalls() int64    { return s.payCalls.Load() }

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	s.payCalls.Add(1)
	if s.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var env struct {
		Request string `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "BAD_REQUEST", "malformed envelope", nil)
		return
	}
	if r.Header.Get("X-VERIFY") != s.signer.SignPayRequest(env.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "AUTHORIZATION_FAILED", "X-VERIFY mismatch", nil)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(env.Request)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "BAD_REQUEST", "payload is not base64", nil)
		return
	}
	var req gateway.PayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "BAD_REQUEST", "payload is not json", nil)
		return
	}

	s.mu.Lock()
	reject := s.payReject
	_, dup := s.payments[req.MerchantTransactionID]
	if reject == "" && !dup {
		s.payments[req.MerchantTransactionID] = req
		s.statuses[req.MerchantTransactionID] = "PAYMENT_PENDING"
	}
	s.mu.Unlock()

	switch {
	case reject != "":
		writeEnvelope(w, http.StatusBadRequest, false, reject, "payment rejected", nil)
	case dup:
		writeEnvelope(w, http.StatusBadRequest, false, "DUPLICATE_TXN_REQUEST", "duplicate merchantTransactionId", nil)
	default:
		writeEnvelope(w, http.StatusOK, true, "PAYMENT_INITIATED", "Payment initiated", map[string]any{
			"merchantId":            req.MerchantID,
			"merchantTransactionId": req.MerchantTransactionID,
			"instrumentResponse": map[string]any{
				"type": "PAY_PAGE",
				"redirectInfo": map[string]any{
					"url":    s.URL + "/pay-page/" + req.MerchantTransactionID,
					"method": "GET",
				},
			},
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.statusCalls.Add(1)
	if s.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	merchantID := chi.URLParam(r, "merchantID")
	txID := chi.URLParam(r, "transactionID")
	if r.Header.Get("X-VERIFY") != s.signer.SignStatusQuery(merchantID, txID) {
		writeEnvelope(w, http.StatusUnauthorized, false, "AUTHORIZATION_FAILED", "X-VERIFY mismatch", nil)
		return
	}

	s.mu.Lock()
	code, ok := s.statuses[txID]
	req := s.payments[txID]
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusOK, false, "TRANSACTION_NOT_FOUND", "No transaction found", nil)
		return
	}

	state := "PENDING"
	switch code {
	case "PAYMENT_SUCCESS":
		state = "COMPLETED"
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "PAYMENT_CANCELLED":
		state = "FAILED"
	}
	writeEnvelope(w, http.StatusOK, code == "PAYMENT_SUCCESS", code, "status", map[string]any{
		"merchantId":            merchantID,
		"merchantTransactionId": txID,
		"transactionId":         "T" + txID,
		"amount":                req.Amount,
		"state":                 state,
		"responseCode":          code,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, code, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"code":    code,
		"message": message,
		"data":    data,
	})
}
