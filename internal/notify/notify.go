package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/models"
)

// Publisher announces completed payments to live clients. Delivery is
// fire-and-forget: no subscriber and broker failure are both non-errors for
// the payment path.
type Publisher interface {
	Publish(ctx context.Context, username string, payment models.Payment)
}

// RedisPublisher fans out over redis pub/sub, one channel per username.
type RedisPublisher struct {
	client  *redis.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, timeout: 2 * time.Second, logger: logger}
}

// Channel names the pub/sub channel for a username's live sessions.
func Channel(username string) string {
	return "payments:" + username
}

func (p *RedisPublisher) Publish(ctx context.Context, username string, payment models.Payment) {
	if username == "" {
		return
	}

	payload, err := json.Marshal(payment)
	if err != nil {
		p.logger.Warn("payment notification marshal failed",
			zap.String("user", username), zap.Error(err))
		return
	}

	// Bounded so a dead broker cannot wedge the payment response.
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, Channel(username), payload).Err(); err != nil {
		p.logger.Warn("payment notification publish failed",
			zap.String("user", username),
			zap.String("condition", payment.ExecutionCondition),
			zap.Error(err))
	}
}

// Nop discards notifications. Used in tests and broker-less deployments.
type Nop struct{}

func (Nop) Publish(context.Context, string, models.Payment) {}
