package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"magicworld/backend/internal/models"
)

const channelPrefix = "availability:"

// ChannelForDate names the pub/sub channel carrying availability updates
// for one visit date.
func ChannelForDate(date string) string {
	return channelPrefix + date
}

// AvailabilityUpdate is the wire format pushed to subscribed clients.
type AvailabilityUpdate struct {
	VisitDate string                      `json:"visitDate"`
	Tickets   []models.TicketAvailability `json:"tickets"`
	At        time.Time                   `json:"at"`
}

// Publisher pushes availability snapshots into Redis pub/sub.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPublisher(redisURL string, logger *slog.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: redis.NewClient(opts), logger: logger}, nil
}

func (p *Publisher) PublishAvailability(ctx context.Context, date string, tickets []models.TicketAvailability) error {
	payload, err := json.Marshal(AvailabilityUpdate{
		VisitDate: date,
		Tickets:   tickets,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, ChannelForDate(date), payload).Err(); err != nil {
		return err
	}
	p.logger.Debug("availability_published", "date", date, "types", len(tickets))
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
