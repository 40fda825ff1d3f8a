package gateway_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"confreg/internal/payment/gateway"
	"confreg/internal/payment/gateway/gatewaytest"
	"confreg/internal/platform/config"
	"confreg/pkg/platform/circuit"
)

type ClientSuite struct {
	suite.Suite
	fake    *gatewaytest.Server
	client  *gateway.Client
	metrics *gateway.Metrics
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.fake = gatewaytest.NewServer()
	s.metrics = gateway.NewMetrics(prometheus.NewRegistry())
	s.client = gateway.NewClient(s.fake.Config(), s.fake.Signer(), gateway.WithMetrics(s.metrics))
}

func (s *ClientSuite) TearDownTest() {
	s.fake.Close()
}

func (s *ClientSuite) TestInitiate_Success() {
	res, err := s.client.Initiate(context.Background(), gateway.InitiateRequest{
		TransactionID:  "TXN1767225600000ABCDEFGHIJ",
		MerchantUserID: "MUID-42",
		AmountMinor:    1200000,
		Mobile:         "9999999999",
	})
	s.Require().NoError(err)
	s.Equal("TXN1767225600000ABCDEFGHIJ", res.TransactionID)
	s.Contains(res.RedirectURL, "/pay-page/TXN1767225600000ABCDEFGHIJ")

	sent, ok := s.fake.Payment("TXN1767225600000ABCDEFGHIJ")
	s.Require().True(ok)
	s.Equal(gatewaytest.MerchantID, sent.MerchantID)
	s.Equal(int64(1200000), sent.Amount)
	s.Equal("POST", sent.RedirectMode)
	s.Equal("PAY_PAGE", sent.PaymentInstrument.Type)
	s.Equal("http://app.test/payment/redirect", sent.RedirectURL)
	s.Equal("http://app.test/payments/callback", sent.CallbackURL)
	s.Equal("9999999999", sent.MobileNumber)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Requests.WithLabelValues("pay", "success")))
}

func (s *ClientSuite) TestInitiate_RejectedCarriesUpstreamCode() {
	s.fake.RejectPayments("BAD_REQUEST")

	_, err := s.client.Initiate(context.Background(), gateway.InitiateRequest{
		TransactionID: "TXN1767225600000ABCDEFGHIJ",
		AmountMinor:   100,
	})
	s.Require().Error(err)
	s.True(gateway.IsRejected(err))

	var ge *gateway.Error
	s.Require().ErrorAs(err, &ge)
	s.Equal("BAD_REQUEST", ge.Code)
	s.Equal(http.StatusBadRequest, ge.HTTPStatus)
	s.False(ge.Retryable)
}

func (s *ClientSuite) TestInitiate_DuplicateTransactionRejected() {
	req := gateway.InitiateRequest{TransactionID: "TXN1767225600000ABCDEFGHIJ", AmountMinor: 100}
	_, err := s.client.Initiate(context.Background(), req)
	s.Require().NoError(err)

	_, err = s.client.Initiate(context.Background(), req)
	var ge *gateway.Error
	s.Require().ErrorAs(err, &ge)
	s.Equal("DUPLICATE_TXN_REQUEST", ge.Code)
}

func (s *ClientSuite) TestInitiate_GatewayDown() {
	s.fake.SetDown(true)
	_, err := s.client.Initiate(context.Background(), gateway.InitiateRequest{TransactionID: "TXN1", AmountMinor: 100})
	s.True(gateway.IsUnavailable(err))
}

func (s *ClientSuite) TestQueryStatus_CodesAreData() {
	ctx := context.Background()
	_, err := s.client.Initiate(ctx, gateway.InitiateRequest{TransactionID: "TXNA", AmountMinor: 5000})
	s.Require().NoError(err)

	for _, code := range []string{"PAYMENT_PENDING", "PAYMENT_SUCCESS", "PAYMENT_DECLINED"} {
		s.fake.SetStatus("TXNA", code)
		res, err := s.client.QueryStatus(ctx, "TXNA")
		s.Require().NoError(err, code)
		s.Equal(code, res.Code)
		s.Equal(code == "PAYMENT_SUCCESS", res.Success)
		s.Equal(int64(5000), res.AmountMinor)
		s.Equal("TTXNA", res.GatewayTransactionID)
	}
}

func (s *ClientSuite) TestQueryStatus_UnknownTransaction() {
	res, err := s.client.QueryStatus(context.Background(), "TXNUNKNOWN")
	s.Require().NoError(err)
	s.Equal("TRANSACTION_NOT_FOUND", res.Code)
	s.False(res.Success)
}

func (s *ClientSuite) TestQueryStatus_NetworkFailureIsUnavailable() {
	s.fake.SetDown(true)
	_, err := s.client.QueryStatus(context.Background(), "TXNA")
	s.Require().Error(err)
	s.True(gateway.IsUnavailable(err))
}

func TestQueryStatus_BreakerFailsFast(t *testing.T) {
	fake := gatewaytest.NewServer()
	defer fake.Close()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("gateway-status",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	client := gateway.NewClient(fake.Config(), fake.Signer(), gateway.WithBreaker(breaker))
	ctx := context.Background()

	fake.SetDown(true)
	for range 2 {
		_, err := client.QueryStatus(ctx, "TXNA")
		require.True(t, gateway.IsUnavailable(err))
	}
	require.True(t, breaker.IsOpen())
	calls := fake.StatusCalls()

	_, err := client.QueryStatus(ctx, "TXNA")
	assert.ErrorIs(t, err, gateway.ErrCircuitOpen)
	assert.Equal(t, calls, fake.StatusCalls(), "open breaker must not reach the gateway")

	fake.SetDown(false)
	now = now.Add(2 * time.Minute)
	res, err := client.QueryStatus(ctx, "TXNA")
	require.NoError(t, err)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", res.Code)
	assert.False(t, breaker.IsOpen())
}

func TestQueryStatus_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	client := gateway.NewClient(config.Gateway{MerchantID: "M", BaseURL: srv.URL}, gateway.NewSigner("s", "1"))
	_, err := client.QueryStatus(context.Background(), "TXNA")

	var ge *gateway.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gateway.KindProtocol, ge.Kind)
}

func TestInitiate_EnvelopeShape(t *testing.T) {
	var (
		gotVerify string
		gotBody   map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v1/pay", r.URL.Path)
		gotVerify = r.Header.Get("X-VERIFY")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"redirectInfo":{"url":"https://pay.test/x"}}}}`))
	}))
	defer srv.Close()

	signer := gateway.NewSigner("salt", "1")
	client := gateway.NewClient(config.Gateway{MerchantID: "M", BaseURL: srv.URL + "/"}, signer)
	_, err := client.Initiate(context.Background(), gateway.InitiateRequest{TransactionID: "TXNA", AmountMinor: 100})
	require.NoError(t, err)

	require.Contains(t, gotBody, "request")
	assert.Equal(t, signer.SignPayRequest(gotBody["request"]), gotVerify)

	raw, err := base64.StdEncoding.DecodeString(gotBody["request"])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "TXNA", payload["merchantTransactionId"])
	assert.Equal(t, float64(100), payload["amount"])
}

func TestInitiate_MissingRedirectIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","data":{}}`))
	}))
	defer srv.Close()

	client := gateway.NewClient(config.Gateway{MerchantID: "M", BaseURL: srv.URL}, gateway.NewSigner("s", "1"))
	_, err := client.Initiate(context.Background(), gateway.InitiateRequest{TransactionID: "TXNA", AmountMinor: 100})
	assert.True(t, gateway.IsRejected(err))
}
