package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/domain"
)

var _ advisor.Publisher = (*Publisher)(nil)

type MockChannel struct {
	PublishFunc func(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	closed      bool
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.PublishFunc(ctx, exchange, key, msg)
}

func (m *MockChannel) Close() error {
	m.closed = true
	return nil
}

func TestPublishInsightsGenerated(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		gotExchange, gotKey string
		gotMsg              amqp.Publishing
	)
	ch := &MockChannel{PublishFunc: func(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
		gotExchange, gotKey, gotMsg = exchange, key, msg
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected publish deadline")
		}
		return nil
	}}
	p := newPublisher(ch, "finance", "insights.generated", zerolog.Nop())
	p.now = func() time.Time { return now }

	a := &domain.Analysis{
		ID:                "a1",
		UserRef:           "user_0123456789abcdef",
		Kind:              "single",
		InsightCount:      3,
		AverageConfidence: 77.5,
		Response:          json.RawMessage(`{"summary":"private details"}`),
	}
	if err := p.PublishInsightsGenerated(context.Background(), a); err != nil {
		t.Fatalf("PublishInsightsGenerated: %v", err)
	}

	if gotExchange != "finance" || gotKey != "insights.generated" {
		t.Errorf("published to %s/%s", gotExchange, gotKey)
	}
	if gotMsg.DeliveryMode != amqp.Persistent || gotMsg.MessageId != "a1" {
		t.Errorf("unexpected publishing: %+v", gotMsg)
	}
	if strings.Contains(string(gotMsg.Body), "private details") {
		t.Error("message must not carry the response")
	}

	msg, err := InsightsGeneratedMessageFromJSON(gotMsg.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.AnalysisID != "a1" || msg.InsightCount != 3 || !msg.Timestamp.Equal(now) {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestPublishInsightsGenerated_Error(t *testing.T) {
	ch := &MockChannel{PublishFunc: func(context.Context, string, string, amqp.Publishing) error {
		return errors.New("channel closed")
	}}
	p := newPublisher(ch, "finance", "insights.generated", zerolog.Nop())

	err := p.PublishInsightsGenerated(context.Background(), &domain.Analysis{ID: "a1"})
	if err == nil || !strings.Contains(err.Error(), "channel closed") {
		t.Errorf("err = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !ch.closed {
		t.Error("expected channel to be closed")
	}
}

func TestInsightsGeneratedMessageFromJSON_Invalid(t *testing.T) {
	if _, err := InsightsGeneratedMessageFromJSON([]byte("{")); err == nil {
		t.Error("expected error")
	}
}
