package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/domain"
)

const (
	vesselsChannel = "fleet:vessels"
	alertsChannel  = "fleet:alerts"
	geoKey         = "fleet:geo"
	alertLogLength = 100
)

type RedisStore struct {
	client   *redis.Client
	stateTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.StateTTL), nil
}

func NewRedisStoreFromClient(client *redis.Client, stateTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, stateTTL: stateTTL}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func StateKey(id string) string {
	return fmt.Sprintf("vessel:%s:state", id)
}

func AlertLogKey(id string) string {
	return fmt.Sprintf("vessel:%s:alerts", id)
}

// PipelineStateUpdate writes the live state hash, the geo index and publishes
// the update in a single round trip.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, s domain.VesselStatus) error {
	stateData := map[string]interface{}{
		"vessel_id":    s.ID,
		"name":         s.Name,
		"state":        s.State.String(),
		"last_poll_at": s.LastPollAt.Unix(),
	}
	if s.LastReading != nil {
		stateData["speed_knots"] = s.LastReading.Speed
		stateData["timestamp"] = s.LastReading.Timestamp.Unix()
		stateData["nav_status"] = s.LastReading.RawStatus
		if s.LastReading.Position != nil {
			stateData["lat"] = s.LastReading.Position.Latitude
			stateData["lon"] = s.LastReading.Position.Longitude
		}
		if s.LastReading.Heading != nil {
			stateData["heading"] = *s.LastReading.Heading
		}
	}

	pubPayload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := StateKey(s.ID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	if r.stateTTL > 0 {
		pipe.Expire(ctx, stateKey, r.stateTTL)
	}
	if s.LastReading != nil && s.LastReading.Position != nil {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      s.ID,
			Longitude: s.LastReading.Position.Longitude,
			Latitude:  s.LastReading.Position.Latitude,
		})
	}
	pipe.Publish(ctx, vesselsChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// getState returns the live state hash for a vessel, empty when unknown.
func (r *RedisStore) getState(ctx context.Context, id string) (map[string]string, error) {
	res, err := r.client.HGetAll(ctx, StateKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state failed: %w", err)
	}
	return res, nil
}

// PublishAlert appends the alert to the vessel's capped alert log and
// publishes it on the fleet alert channel.
func (r *RedisStore) PublishAlert(ctx context.Context, ev domain.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	logKey := AlertLogKey(ev.ID)

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, logKey, payload)
	pipe.LTrim(ctx, logKey, 0, alertLogLength-1)
	pipe.Publish(ctx, alertsChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish alert failed: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts for a vessel, newest first.
func (r *RedisStore) RecentAlerts(ctx context.Context, id string, limit int64) ([]domain.AlertEvent, error) {
	raw, err := r.client.LRange(ctx, AlertLogKey(id), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis alert log failed: %w", err)
	}
	out := make([]domain.AlertEvent, 0, len(raw))
	for _, item := range raw {
		var ev domain.AlertEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode alert log entry: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *RedisStore) subscribeAlerts(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, alertsChannel)
}

func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("speedwatch:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
