package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/nhle/unibox/internal/model"
)

type fakeChannel struct {
	exchange  string
	key       string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(
	_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing,
) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() MessageSynced {
	high := model.PriorityHigh
	intent := "order"
	acct := &model.Account{ID: "acct-1", UserID: "user-1", Provider: model.ProviderGmail}
	msg := &model.Message{
		ID:                "msg-1",
		AccountID:         "acct-1",
		ProviderMessageID: "p-1",
		From:              "alice@example.com",
		Subject:           "Order",
		ReceivedAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Priority:          &high,
		Intent:            &intent,
	}
	return NewMessageSynced(acct, msg)
}

func TestNewMessageSynced(t *testing.T) {
	ev := sampleEvent()
	require.Equal(t, "user-1", ev.UserID)
	require.Equal(t, "gmail", ev.Provider)
	require.Equal(t, "high", ev.Priority)
	require.Equal(t, "order", ev.Intent)
}

func TestAMQPPublisherSendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "unibox"}

	require.NoError(t, p.PublishMessageSynced(context.Background(), sampleEvent()))
	require.Equal(t, "unibox", ch.exchange)
	require.Equal(t, RoutingKeyMessageSynced, ch.key)
	require.Len(t, ch.published, 1)

	pub := ch.published[0]
	require.Equal(t, "application/json", pub.ContentType)
	require.Equal(t, amqp.Persistent, pub.DeliveryMode)
	require.Equal(t, "msg-1", pub.MessageId)

	var decoded MessageSynced
	require.NoError(t, json.Unmarshal(pub.Body, &decoded))
	require.Equal(t, sampleEvent(), decoded)

	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}

func TestAMQPPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("channel closed")
	p := &AMQPPublisher{ch: &fakeChannel{err: boom}, exchange: "unibox"}

	err := p.PublishMessageSynced(context.Background(), sampleEvent())
	require.ErrorIs(t, err, boom)
}

func TestDialAMQPIntegration(t *testing.T) {
	url := os.Getenv("UNIBOX_TEST_AMQP_URL")
	if url == "" {
		t.Skip("UNIBOX_TEST_AMQP_URL not set")
	}

	p, err := DialAMQP(url, "unibox-test")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.PublishMessageSynced(context.Background(), sampleEvent()))
}
