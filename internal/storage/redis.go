package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis"

	logx "nagbot/pkg/logx"
)

const redisKeyPrefix = "reminder:"

type redisStore struct {
	c   *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	c := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.RedisDB})
	if _, err := c.Ping().Result(); err != nil {
		_ = c.Close()
		return nil, err
	}
	log.Info("redis storage ready", logx.String("addr", addr), logx.Int("db", cfg.RedisDB))
	return &redisStore{c: c, log: log}, nil
}

func redisKey(messageID int) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, messageID)
}

func (s *redisStore) Insert(ctx context.Context, r Reminder) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.c.Set(redisKey(r.MessageID), b, 0).Err()
}

func (s *redisStore) Update(ctx context.Context, messageID int, p Patch) error {
	if p.empty() {
		return nil
	}
	b, err := s.c.Get(redisKey(messageID)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	var r Reminder
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if p.DueAt != "" {
		r.DueAt = p.DueAt
	}
	oldKey := redisKey(messageID)
	if p.NewMessageID != 0 {
		r.MessageID = p.NewMessageID
	}
	nb, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if r.MessageID == messageID {
		return s.c.Set(oldKey, nb, 0).Err()
	}
	// Re-key atomically: drop the old record, write the new one.
	pipe := s.c.TxPipeline()
	pipe.Del(oldKey)
	pipe.Set(redisKey(r.MessageID), nb, 0)
	_, err = pipe.Exec()
	return err
}

func (s *redisStore) Delete(ctx context.Context, messageID int) error {
	return s.c.Del(redisKey(messageID)).Err()
}

func (s *redisStore) Count(ctx context.Context, messageID int) (int, error) {
	n, err := s.c.Exists(redisKey(messageID)).Result()
	return int(n), err
}

func (s *redisStore) List(ctx context.Context) ([]Reminder, error) {
	keys, err := s.c.Keys(redisKeyPrefix + "*").Result()
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, len(keys))
	for _, k := range keys {
		b, err := s.c.Get(k).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var r Reminder
		if err := json.Unmarshal(b, &r); err != nil {
			s.log.Warn("skipping undecodable reminder value", logx.String("key", k), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *redisStore) Close() error { return s.c.Close() }
