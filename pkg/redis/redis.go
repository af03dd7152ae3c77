package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cardscan/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultEventsChannel = "scanner:events"

// INotifier announces finished scan sessions to whoever renders the game.
type INotifier interface {
	PublishScanCompleted(ctx context.Context, event entity.ScanCompletedEvent) error
	Close() error
}

type redisNotifier struct {
	client  *redis.Client
	channel string
}

// New connects to REDIS_ADDRESS. Without an address completion events are
// only logged.
func New() INotifier {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		logrus.Info("REDIS_ADDRESS not set, scan completion events will not be published")
		return nopNotifier{}
	}

	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisPassword := os.Getenv("REDIS_PASSWORD")
	channel := os.Getenv("SCANNER_EVENTS_CHANNEL")
	if channel == "" {
		channel = DefaultEventsChannel
	}

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, channel)
}

func NewWithClient(client *redis.Client, channel string) INotifier {
	return &redisNotifier{client: client, channel: channel}
}

func EncodeEvent(event entity.ScanCompletedEvent) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
}

func (r *redisNotifier) PublishScanCompleted(ctx context.Context, event entity.ScanCompletedEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode scan event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error publishing scan event for session %s: %v", event.SessionID, err))
		return err
	}

	logrus.Debug(fmt.Sprintf("Published scan event for session %s to %d receivers", event.SessionID, receivers))
	return nil
}

func (r *redisNotifier) Close() error {
	return r.client.Close()
}

type nopNotifier struct{}

func (nopNotifier) PublishScanCompleted(ctx context.Context, event entity.ScanCompletedEvent) error {
	logrus.WithFields(logrus.Fields{
		"session_id":     event.SessionID,
		"imported_count": event.ImportedCount,
	}).Debug("Scan completed")
	return nil
}

func (nopNotifier) Close() error { return nil }
