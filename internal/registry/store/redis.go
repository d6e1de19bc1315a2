package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"meldid/internal/registry"
	"meldid/pkg/platform/sentinel"
)

const (
	// Immutable registration document, written once via SETNX.
	redisEntryKeyPrefix = "meld:entry:"
	// Mutable lastSeen in Unix milliseconds, overwritten on every touch.
	redisSeenKeyPrefix = "meld:seen:"
)

// Redis persists registrations across instances. Key material lives in a
// write-once document (SETNX gives the per-chip first-write-wins atomicity)
// while lastSeen is a separate monotonic timestamp key, so touches never
// rewrite the immutable part.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Create(ctx context.Context, entry registry.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisEntryKeyPrefix+entry.ChipID, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx entry: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	if err := s.client.Set(ctx, redisSeenKeyPrefix+entry.ChipID, entry.LastSeen.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("set lastSeen: %w", err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, chipID string) (registry.Entry, error) {
	raw, err := s.client.Get(ctx, redisEntryKeyPrefix+chipID).Result()
	if errors.Is(err, redis.Nil) {
		return registry.Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	entry, err := s.decodeEntry(ctx, chipID, raw)
	if err != nil {
		return registry.Entry{}, err
	}
	return entry, nil
}

// touchScript advances the seen timestamp only forward, matching the
// monotonic lastSeen behavior of the other stores under concurrent touches.
var touchScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur or tonumber(ARGV[1]) > tonumber(cur) then
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1`)

func (s *Redis) Touch(ctx context.Context, chipID string, seenAt time.Time) error {
	exists, err := s.client.Exists(ctx, redisEntryKeyPrefix+chipID).Result()
	if err != nil {
		return fmt.Errorf("check entry: %w", err)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}
	if err := touchScript.Run(ctx, s.client, []string{redisSeenKeyPrefix + chipID}, seenAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("advance lastSeen: %w", err)
	}
	return nil
}

func (s *Redis) BatchGet(ctx context.Context, chipIDs []string) ([]registry.Entry, error) {
	if len(chipIDs) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(chipIDs))
	for i, id := range chipIDs {
		cmds[i] = pipe.Get(ctx, redisEntryKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline get: %w", err)
	}
	out := make([]registry.Entry, 0, len(chipIDs))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get entry %q: %w", chipIDs[i], err)
		}
		entry, err := s.decodeEntry(ctx, chipIDs[i], raw)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Redis) List(ctx context.Context) ([]registry.Entry, error) {
	var out []registry.Entry
	iter := s.client.Scan(ctx, 0, redisEntryKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		chipID := iter.Val()[len(redisEntryKeyPrefix):]
		entry, err := s.Get(ctx, chipID)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	return out, nil
}

func (s *Redis) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) decodeEntry(ctx context.Context, chipID, raw string) (registry.Entry, error) {
	var entry registry.Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return registry.Entry{}, fmt.Errorf("unmarshal entry %q: %w", chipID, err)
	}
	seen, err := s.client.Get(ctx, redisSeenKeyPrefix+chipID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return registry.Entry{}, fmt.Errorf("get lastSeen %q: %w", chipID, err)
	}
	if err == nil {
		ms, parseErr := strconv.ParseInt(seen, 10, 64)
		if parseErr != nil {
			return registry.Entry{}, fmt.Errorf("parse lastSeen %q: %w", chipID, parseErr)
		}
		entry.LastSeen = time.UnixMilli(ms).UTC()
	}
	return entry, nil
}
