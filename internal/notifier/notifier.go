// Package notifier delivers new-call and accepted toasts to the UI sinks.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqttcommon "renaissance-stewcall/common/mqtt"
	rediscommon "renaissance-stewcall/common/redis"
	"renaissance-stewcall/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notifier one notification sink
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes toasts to the service log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n models.Notification) error {
	l.logger.Info("Service call notification",
		zap.String("notification_id", n.ID),
		zap.String("kind", n.Kind),
		zap.Int64("alarm_id", n.CallID),
		zap.Strings("wristband_ids", n.WristbandIDs),
		zap.Strings("guest_names", n.GuestNames),
		zap.String("ack_by", n.AckBy),
		zap.String("text", n.Text),
	)
	return nil
}

// ErrMQTTDisconnected the broker link is down; paho reconnects on its own
var ErrMQTTDisconnected = errors.New("mqtt broker not connected")

// MQTTNotifier publishes toasts as JSON to crew handhelds
type MQTTNotifier struct {
	publisher mqttcommon.Publisher
	topic     string
	qos       byte
}

func NewMQTTNotifier(publisher mqttcommon.Publisher, topic string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{publisher: publisher, topic: topic, qos: qos}
}

// Notify publishes to <topic>/<kind>
func (m *MQTTNotifier) Notify(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	topic := m.topic + "/" + n.Kind
	if !m.publisher.IsConnected() {
		return fmt.Errorf("publish to %s: %w", topic, ErrMQTTDisconnected)
	}
	if err := m.publisher.Publish(topic, m.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// RedisStreamNotifier appends toasts to a Redis stream for other dashboards
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamNotifier(client *redis.Client, stream string, maxLen int64) *RedisStreamNotifier {
	return &RedisStreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStreamNotifier) Notify(ctx context.Context, n models.Notification) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, r.client, r.stream, r.maxLen, n); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Multi fans out to every sink. A failing sink is logged and does not stop
// the others; Notify returns the joined errors.
type Multi struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewMulti(logger *zap.Logger, sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Add appends a sink
func (m *Multi) Add(sink Notifier) {
	m.sinks = append(m.sinks, sink)
}

func (m *Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			m.logger.Warn("Notification sink failed",
				zap.String("notification_id", n.ID),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
