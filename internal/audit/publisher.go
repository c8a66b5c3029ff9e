package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"RugShield/internal/event"
)

// StreamName holds every outbound audit subject under rug.events.>.
const StreamName = "RUG_EVENTS"

// Publisher publishes audit events to NATS JetStream for downstream
// consumers. The engine's publish channel is drop-on-full, so a slow
// consumer never backpressures the engine; anything missed is still in
// the Postgres audit log.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Envelope
}

// wireEvent is the published JSON shape.
type wireEvent struct {
	Sequence  uint64      `json:"sequence"`
	Kind      string      `json:"kind"`
	Actor     string      `json:"actor"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan *event.Envelope) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run drains the publish channel until ctx is cancelled or the channel
// closes. Publish failures are non-fatal: consumers can replay from
// the audit log.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(wireEvent{
		Sequence:  env.Sequence,
		Kind:      env.Kind.String(),
		Actor:     env.Actor,
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("rug.events.%s", env.Kind.Subject())
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound audit stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"rug.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", StreamName)
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
