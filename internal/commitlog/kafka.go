package commitlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaLog commits entries to a Kafka topic. Producing with acks=all gives
// the durability the accept path requires; the topic is expected to be
// configured append-only downstream (compaction off, deletes disabled).
type KafkaLog struct {
	client *kgo.Client
	topic  string
}

// kafkaEnvelope is the wire format of one committed entry.
type kafkaEnvelope struct {
	CommitID  string          `json:"commit_id"`
	EventType string          `json:"event_type"`
	Committed time.Time       `json:"committed"`
	Payload   json.RawMessage `json:"payload"`
}

// NewKafka connects to the brokers and ensures the commit topic exists.
func NewKafka(ctx context.Context, brokers []string, topic string) (*KafkaLog, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	admin := kadm.NewClient(client)
	// Replication factor -1 takes the broker default, so single-broker
	// deployments can create the topic too.
	if _, err := admin.CreateTopic(ctx, 1, -1, nil, topic); err != nil {
		// Already-exists is fine; any other failure means the commit log is
		// not usable and the server should not start.
		if !errors.Is(err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure commit topic %q: %w", topic, err)
		}
	}
	return &KafkaLog{client: client, topic: topic}, nil
}

// Record appends one entry and waits for the produce acknowledgement.
func (l *KafkaLog) Record(ctx context.Context, eventType EventType, payload any) (CommitReceipt, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CommitReceipt{}, fmt.Errorf("marshal commit payload: %w", err)
	}
	receipt := CommitReceipt{CommitID: uuid.NewString(), Committed: time.Now()}
	envelope, err := json.Marshal(kafkaEnvelope{
		CommitID:  receipt.CommitID,
		EventType: string(eventType),
		Committed: receipt.Committed,
		Payload:   raw,
	})
	if err != nil {
		return CommitReceipt{}, fmt.Errorf("marshal commit envelope: %w", err)
	}

	record := &kgo.Record{
		Topic: l.topic,
		Key:   []byte(eventType),
		Value: envelope,
	}
	if err := l.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return CommitReceipt{}, fmt.Errorf("produce commit entry: %w", err)
	}
	return receipt, nil
}

// Close flushes pending produces and releases the client.
func (l *KafkaLog) Close() {
	l.client.Close()
}
