package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"renaissance-stewcall/internal/models"
	"renaissance-stewcall/internal/notifier"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakePublisher records MQTT publishes
type fakePublisher struct {
	msgs []published
	err  error
	down bool
}

func (f *fakePublisher) IsConnected() bool { return !f.down }

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload})
	return nil
}

var sample = models.Notification{
	ID:           "3f1c8c1e-7d59-4bb0-9d8c-6b1f0b6d6d11",
	Kind:         models.NotifyNewCall,
	CallID:       42,
	WristbandIDs: []string{"G2 505"},
	GuestNames:   []string{"Ms. Laurent"},
	Text:         "G2 505 Renaissance on AV ROOM 232",
}

func TestMQTTNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := notifier.NewMQTTNotifier(pub, "stewcall/notifications", 1)

	require.NoError(t, n.Notify(context.Background(), sample))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "stewcall/notifications/new_call", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)

	var got models.Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, sample, got)
}

func TestMQTTNotifier_SkipsWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{down: true}
	n := notifier.NewMQTTNotifier(pub, "stewcall/notifications", 1)

	err := n.Notify(context.Background(), sample)
	assert.ErrorIs(t, err, notifier.ErrMQTTDisconnected)
	assert.Empty(t, pub.msgs)
}

func TestRedisStreamNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := notifier.NewRedisStreamNotifier(client, "stewcall:notifications", 100)
	require.NoError(t, n.Notify(context.Background(), sample))

	msgs, err := client.XRange(context.Background(), "stewcall:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got models.Notification
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, int64(42), got.CallID)
}

func TestMulti_ContinuesPastFailingSink(t *testing.T) {
	broken := &fakePublisher{err: errors.New("broker down")}
	ok := &fakePublisher{}
	m := notifier.NewMulti(zap.NewNop(),
		notifier.NewMQTTNotifier(broken, "a", 0),
		notifier.NewLogNotifier(zap.NewNop()),
	)
	m.Add(notifier.NewMQTTNotifier(ok, "b", 0))

	err := m.Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.msgs, 1)
}
