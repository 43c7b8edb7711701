package orderevents

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const bridgeChannel = "comanda:order_events"

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Hub       *Hub
	Log       *zap.Logger
	Redis     *redis.Client    `optional:"true"`
	Exporter  *Exporter        `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

// bridgeMessage carries an event between instances. Origin lets an instance
// skip its own messages, which it already delivered locally.
type bridgeMessage struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Dispatcher is the order service's publisher. It delivers to the local hub,
// relays through redis when configured and feeds the broker export.
type Dispatcher struct {
	hub      *Hub
	log      *zap.Logger
	redis    *redis.Client
	exporter *Exporter
	metrics  *metrics.Metrics
	instance string
	pubsub   *redis.PubSub
}

func NewDispatcher(p Params) *Dispatcher {
	d := &Dispatcher{
		hub:      p.Hub,
		log:      p.Log.Named("orderevents.dispatcher"),
		redis:    p.Redis,
		exporter: p.Exporter,
		metrics:  p.Metrics,
		instance: uuid.NewString(),
	}
	if d.redis != nil && p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: d.startBridge,
			OnStop: func(context.Context) error {
				if d.pubsub != nil {
					return d.pubsub.Close()
				}
				return nil
			},
		})
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, change orderdomain.Change) {
	ev := FromChange(change)
	d.deliver(ctx, ev)
	d.exporter.Enqueue(ev)

	if d.redis == nil {
		return
	}
	payload, err := json.Marshal(bridgeMessage{Origin: d.instance, Event: ev})
	if err != nil {
		d.log.Error("encode bridged order event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	if err := d.redis.Publish(context.WithoutCancel(ctx), bridgeChannel, payload).Err(); err != nil {
		d.log.Warn("bridge order event failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, r := range routes(ev) {
		delivered, dropped := d.hub.Publish(r.key, ev)
		d.metrics.RecordRealtimeDelivered(ctx, string(r.audience), delivered, dropped)
		if dropped > 0 {
			d.log.Debug("slow subscribers skipped order event",
				zap.String("stream", r.key),
				zap.String("event_id", ev.ID),
				zap.Int("dropped", dropped),
			)
		}
	}
}

func (d *Dispatcher) startBridge(ctx context.Context) error {
	sub := d.redis.Subscribe(ctx, bridgeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	d.pubsub = sub
	go d.relay(sub.Channel())
	d.log.Info("order event bridge subscribed", zap.String("channel", bridgeChannel))
	return nil
}

func (d *Dispatcher) relay(messages <-chan *redis.Message) {
	for msg := range messages {
		d.handleBridged([]byte(msg.Payload))
	}
}

func (d *Dispatcher) handleBridged(payload []byte) {
	var msg bridgeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.log.Warn("discarding malformed bridged order event", zap.Error(err))
		return
	}
	if msg.Origin == d.instance {
		return
	}
	d.deliver(context.Background(), msg.Event)
}
