// Package kafkapub streams processed windows to a Kafka topic for
// downstream aggregation pipelines.
package kafkapub

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fverao/powercapd/internal/capture"
	"github.com/fverao/powercapd/internal/logger"
)

const writeTimeout = 5 * time.Second

type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes one message per window, keyed by sequence number so a
// partitioned topic preserves per-session ordering signals. Write failures
// are logged and dropped; the capture loop never blocks on the broker
// beyond the write timeout.
type Publisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

func New(cfg Config, log logger.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writer: writer,
		log:    log,
	}
}

func (p *Publisher) OnWindow(w capture.Window) {
	payload, err := json.Marshal(w)
	if err != nil {
		p.log.Warn().Err(err).Int("sequence", w.Sequence).Msg("Failed to encode window for Kafka")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(w.Sequence)),
		Value: payload,
	})
	if err != nil {
		p.log.Warn().
			Err(err).
			Int("sequence", w.Sequence).
			Msg("Kafka publish failed")
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
