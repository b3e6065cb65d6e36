package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusActive = "active"
	StatusEmpty  = "empty"
)

// Update is the payload published for every room occupancy change.
type Update struct {
	Room      string    `json:"room"`
	Members   int       `json:"members"`
	Status    string    `json:"status"`
	Instance  string    `json:"instance,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends a raw payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Notifier queues occupancy updates and publishes them from its own goroutine,
// so the caller (the hub loop) never waits on the network.
type Notifier struct {
	pub      Publisher
	channel  string
	instance string
	updates  chan Update
	dropped  atomic.Int64
	log      *zerolog.Logger
	now      func() time.Time
}

// NewNotifier builds a notifier. buffer bounds the queue; updates beyond it are dropped and counted.
func NewNotifier(pub Publisher, channel, instance string, buffer int, logger *zerolog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{
		pub:      pub,
		channel:  channel,
		instance: instance,
		updates:  make(chan Update, buffer),
		log:      logger,
		now:      time.Now,
	}
}

// RoomChanged enqueues an update without blocking.
func (n *Notifier) RoomChanged(room string, members int) {
	status := StatusActive
	if members == 0 {
		status = StatusEmpty
	}
	update := Update{
		Room:      room,
		Members:   members,
		Status:    status,
		Instance:  n.instance,
		Timestamp: n.now(),
	}
	select {
	case n.updates <- update:
	default:
		n.dropped.Add(1)
	}
}

// Dropped reports how many updates were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run publishes queued updates until ctx is cancelled. Publish failures are logged and skipped.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-n.updates:
			if err := n.publish(ctx, update); err != nil {
				n.log.Warn().Err(err).Str("room", update.Room).Msg("publish occupancy update")
			}
		}
	}
}

func (n *Notifier) publish(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := n.pub.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}
