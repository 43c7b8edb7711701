package orderevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	exportQueueSize      = 256
	exportPublishTimeout = 5 * time.Second
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Exporter copies every event to a topic exchange keyed by event kind. It
// runs off a bounded queue so a slow broker never holds up an order write.
type Exporter struct {
	log      *zap.Logger
	exchange string
	queue    chan Event
	stop     chan struct{}
	wg       sync.WaitGroup

	conn    *amqp.Connection
	channel amqpPublisher
}

// NewExporter returns nil when AMQP is not configured.
func NewExporter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Exporter, error) {
	if !cfg.AMQP.Enabled() {
		return nil, nil
	}
	e := newExporter(cfg.AMQP.Exchange, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			conn, err := amqp.Dial(cfg.AMQP.URL)
			if err != nil {
				return fmt.Errorf("amqp dial: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return fmt.Errorf("amqp channel: %w", err)
			}
			if err := ch.ExchangeDeclare(e.exchange, "topic", true, false, false, false, nil); err != nil {
				_ = conn.Close()
				return fmt.Errorf("amqp exchange declare: %w", err)
			}
			e.conn = conn
			e.start(ch)
			e.log.Info("order event export started", zap.String("exchange", e.exchange))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			e.shutdown()
			if e.conn != nil {
				return e.conn.Close()
			}
			return nil
		},
	})
	return e, nil
}

func newExporter(exchange string, log *zap.Logger) *Exporter {
	return &Exporter{
		log:      log.Named("orderevents.exporter"),
		exchange: exchange,
		queue:    make(chan Event, exportQueueSize),
		stop:     make(chan struct{}),
	}
}

func (e *Exporter) start(ch amqpPublisher) {
	e.channel = ch
	e.wg.Add(1)
	go e.run()
}

func (e *Exporter) shutdown() {
	select {
	case <-e.stop:
		return
	default:
		close(e.stop)
	}
	e.wg.Wait()
}

// Enqueue never blocks. A full queue drops the event.
func (e *Exporter) Enqueue(ev Event) {
	if e == nil {
		return
	}
	select {
	case <-e.stop:
		return
	default:
	}
	select {
	case e.queue <- ev:
	default:
		e.log.Warn("order event export queue full, dropping event",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

func (e *Exporter) run() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.queue:
			e.export(ev)
		case <-e.stop:
			for {
				select {
				case ev := <-e.queue:
					e.export(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Exporter) export(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("encode order event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), exportPublishTimeout)
	defer cancel()

	err = e.channel.PublishWithContext(ctx, e.exchange, string(ev.Kind), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		e.log.Warn("export order event failed",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
