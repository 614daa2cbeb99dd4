package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

// Client caches dispatched outbound messages for the admin API. The outbox
// table stays the source of truth.
type Client struct {
	client valkey.Client
}

const (
	sentMessageKeyPrefix = "outbox:sent:"
	sentMessageTTL       = 24 * time.Hour
	scanBatch            = 100
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	logger.Infof("Connected to Valkey")

	return &Client{client: client}, nil
}

func sentMessageKey(outboundID string) string {
	return sentMessageKeyPrefix + outboundID
}

func (c *Client) CacheSentMessage(ctx context.Context, outboundID, externalID string, sentAt time.Time) error {
	data, err := json.Marshal(domain.SentMessageCache{
		ExternalID: externalID,
		SentAt:     sentAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	cmd := c.client.B().Set().Key(sentMessageKey(outboundID)).Value(string(data)).Ex(sentMessageTTL).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to cache sent message: %w", err)
	}

	logger.Debugf("Cached outbound message %s -> %s", outboundID, externalID)
	return nil
}

func (c *Client) GetCachedMessage(ctx context.Context, outboundID string) (*domain.SentMessageCache, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(sentMessageKey(outboundID)).Build())
	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached message: %w", err)
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached message: %w", err)
	}

	var cache domain.SentMessageCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &cache, nil
}

// GetAllCachedMessages returns every cached dispatch keyed by outbound id.
// Unreadable entries are skipped.
func (c *Client) GetAllCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error) {
	var keys []string
	var cursor uint64
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(sentMessageKeyPrefix + "*").Count(scanBatch).Build()
		entry, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", err)
		}

		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	result := make(map[string]*domain.SentMessageCache, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, sentMessageKeyPrefix)

		cache, err := c.GetCachedMessage(ctx, id)
		if err != nil {
			logger.Warnf("Skipping cached message %q: %v", key, err)
			continue
		}
		if cache != nil {
			result[id] = cache
		}
	}

	return result, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
