package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/service"
)

const (
	replayPageSize = 100

	resubscribeMin = 500 * time.Millisecond
	resubscribeMax = 30 * time.Second
)

// relay tracks what has reached the hub so a replay after a resubscribe
// only delivers the gap.
type relay struct {
	hub   *Hub
	bus   domain.SignalBus
	since time.Time // stream entries older than the relay are history

	cursor   string          // last stream ID consumed by a replay
	lastSeq  uint64          // highest Seq delivered
	replayed map[uint64]bool // Seqs delivered by the latest replay
}

// RelayBus forwards events published on the signal bus by any replica. When
// the subscription drops it resubscribes and replays the durable event
// stream, so events committed while it was down still reach clients. It
// returns when ctx is cancelled.
func (h *Hub) RelayBus(ctx context.Context, bus domain.SignalBus) error {
	msgCh, err := bus.Subscribe(ctx, service.EventsChannel)
	if err != nil {
		return err
	}
	h.logger.Info("relaying bus events", slog.String("channel", service.EventsChannel))

	r := &relay{hub: h, bus: bus, since: time.Now().UTC(), cursor: "0"}
	for {
		r.forward(ctx, msgCh)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("bus subscription closed, resubscribing")

		if msgCh, err = r.resubscribe(ctx); err != nil {
			return err
		}
		if err := r.replay(ctx); err != nil {
			h.logger.Warn("event stream replay failed", slog.String("error", err.Error()))
		}
	}
}

// forward relays live messages until the subscription closes or ctx is done.
func (r *relay) forward(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				return
			}
			msg, err := decodeMessage(data)
			if err != nil {
				r.hub.logger.Warn("skipping malformed bus message", slog.String("error", err.Error()))
				continue
			}
			// Live messages buffered during a replay arrive twice.
			if r.replayed[msg.Event.Seq] {
				continue
			}
			r.deliver(msg, data)
		}
	}
}

func (r *relay) resubscribe(ctx context.Context) (<-chan []byte, error) {
	backoff := resubscribeMin
	for {
		msgCh, err := r.bus.Subscribe(ctx, service.EventsChannel)
		if err == nil {
			return msgCh, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.hub.logger.Warn("resubscribe failed",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		backoff = min(backoff*2, resubscribeMax)
	}
}

// replay reads the stream from the cursor and delivers every event newer
// than the high-water mark. Seq is assigned by the shared store, so an
// entry at or below it was already relayed.
func (r *relay) replay(ctx context.Context) error {
	r.replayed = make(map[uint64]bool)
	for {
		page, err := r.bus.StreamRead(ctx, service.EventsStream, r.cursor, replayPageSize)
		if err != nil {
			return err
		}
		for _, m := range page {
			r.cursor = m.ID
			msg, err := decodeMessage(m.Payload)
			if err != nil {
				continue
			}
			if msg.Event.Seq <= r.lastSeq || msg.Event.CreatedAt.Before(r.since) {
				continue
			}
			r.replayed[msg.Event.Seq] = true
			r.deliver(msg, m.Payload)
		}
		if len(page) < replayPageSize {
			if len(r.replayed) > 0 {
				r.hub.logger.Info("replayed missed events", slog.Int("count", len(r.replayed)))
			}
			return nil
		}
	}
}

func (r *relay) deliver(msg service.EventMessage, data []byte) {
	r.lastSeq = max(r.lastSeq, msg.Event.Seq)
	r.hub.publish(ChannelPrefix+string(msg.Event.Name), data)
}

func decodeMessage(data []byte) (service.EventMessage, error) {
	var msg service.EventMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
