//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "confreg/pkg/platform/audit"
	"confreg/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
	sink   *Sink
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
	sink, err := NewSink(context.Background(), Config{
		Brokers: []string{s.broker.Broker},
		Topic:   "confreg.audit.test",
	}, slog.Default())
	s.Require().NoError(err)
	s.sink = sink
}

func (s *SinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *SinkSuite) TestAppendIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := audit.Event{
		Action:        audit.ActionPaymentCompleted,
		Category:      audit.CategoryFinancial,
		Email:         "p-42",
		TransactionID: "TXN1700000000000ABCDEFGHIJ",
		AmountMinor:   1200000,
		Source:        "callback",
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Broker),
		kgo.ConsumeTopics("confreg.audit.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	require.NoError(s.T(), json.Unmarshal(records[0].Value, &got))
	s.Equal("p-42", string(records[0].Key))
	s.Equal(event.TransactionID, got.TransactionID)
	s.Equal(int64(1200000), got.AmountMinor)
}

func (s *SinkSuite) TestPing() {
	s.NoError(s.sink.Ping(context.Background()))
}
