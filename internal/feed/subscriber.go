package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OracleStream carries every inbound oracle subject under rug.oracle.>.
const OracleStream = "RUG_ORACLE"

const (
	SubjectPrice = "rug.oracle.price"
	SubjectRisk  = "rug.oracle.risk.>"
	SubjectRug   = "rug.oracle.rug.>"
)

// Subscriber consumes oracle readings from NATS JetStream and updates
// the store. Malformed messages are acked and dropped so a bad producer
// cannot wedge the consumer with redelivery loops.
type Subscriber struct {
	js        jetstream.JetStream
	store     *Store
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, store *Store, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:    js,
		store: store,
		log:   log,
	}
}

type consumerConfig struct {
	subject      string
	consumerName string
	handler      func(subject string, data []byte) error
}

// Subscribe creates durable JetStream consumers for the three oracle
// subjects. Only the newest reading matters, so delivery starts at the
// stream tail.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	configs := []consumerConfig{
		{SubjectPrice, "oracle-price", s.handlePrice},
		{SubjectRisk, "oracle-risk", s.handleRisk},
		{SubjectRug, "oracle-rug", s.handleRug},
	}

	for _, cfg := range configs {
		handler := cfg.handler
		subject := cfg.subject

		consumer, err := s.js.CreateOrUpdateConsumer(ctx, OracleStream, jetstream.ConsumerConfig{
			Durable:       cfg.consumerName,
			FilterSubject: cfg.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.consumerName, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			if err := handler(msg.Subject(), msg.Data()); err != nil {
				s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("oracle message dropped")
			}
			msg.Ack()
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.consumerName, err)
		}

		s.consumers = append(s.consumers, cc)
		s.log.Info().Str("subject", subject).Msg("oracle feed subscribed")
	}

	return nil
}

func (s *Subscriber) handlePrice(_ string, data []byte) error {
	p, err := ParsePriceUpdate(data)
	if err != nil {
		return err
	}
	s.store.SetPrice(p)
	return nil
}

func (s *Subscriber) handleRisk(_ string, data []byte) error {
	token, m, err := ParseRiskUpdate(data)
	if err != nil {
		return err
	}
	s.store.SetRiskMetrics(token, m)
	return nil
}

func (s *Subscriber) handleRug(_ string, data []byte) error {
	token, rugged, err := ParseRugStatus(data)
	if err != nil {
		return err
	}
	s.store.SetRugged(token, rugged)
	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
}

// EnsureStream creates the inbound oracle stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      OracleStream,
		Subjects:  []string{"rug.oracle.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create oracle stream: %w", err)
	}
	return nil
}
