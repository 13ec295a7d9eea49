package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot/internal/model"
)

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RedisStore keeps each page under <prefix>page:<id> and indexes ids in a
// sorted set scored by insertion time, plus a hash of id to url for listing.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects and pings.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", cfg.Addr)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "hotspot:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) pageKey(id string) string { return s.prefix + "page:" + id }
func (s *RedisStore) orderKey() string         { return s.prefix + "pages:order" }
func (s *RedisStore) urlKey() string           { return s.prefix + "pages:url" }

func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	data, err := s.client.Get(ctx, s.pageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get page %s", id)
	}
	return model.DecodePage(data)
}

func (s *RedisStore) AddPage(ctx context.Context, p *model.Page) error {
	data, err := model.EncodePage(p)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.pageKey(p.ID), data, 0).Result()
	if err != nil {
		return eris.Wrapf(err, "redis: insert page %s", p.ID)
	}
	if !ok {
		return alreadyExists(p.ID)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.index(ctx, pipe, p, time.Now())
		return nil
	})
	return eris.Wrapf(err, "redis: index page %s", p.ID)
}

func (s *RedisStore) SavePage(ctx context.Context, p *model.Page) error {
	return s.SavePages(ctx, []*model.Page{p})
}

func (s *RedisStore) SavePages(ctx context.Context, pages []*model.Page) error {
	if len(pages) == 0 {
		return nil
	}
	now := time.Now()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pages {
			data, err := model.EncodePage(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.pageKey(p.ID), data, 0)
			s.index(ctx, pipe, p, now)
		}
		return nil
	})
	return eris.Wrap(err, "redis: save pages")
}

// index records p in the listing structures. ZAddNX keeps the original
// insertion score on later saves.
func (s *RedisStore) index(ctx context.Context, pipe redis.Pipeliner, p *model.Page, at time.Time) {
	pipe.ZAddNX(ctx, s.orderKey(), redis.Z{Score: float64(at.UnixNano()), Member: p.ID})
	pipe.HSet(ctx, s.urlKey(), p.ID, p.URL)
}

func (s *RedisStore) RemovePage(ctx context.Context, id string) (*model.Page, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, s.pageKey(id))
		pipe.Del(ctx, s.pageKey(id))
		pipe.ZRem(ctx, s.orderKey(), id)
		pipe.HDel(ctx, s.urlKey(), id)
		return nil
	})
	if errors.Is(err, redis.Nil) || errors.Is(get.Err(), redis.Nil) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: delete page %s", id)
	}
	data, err := get.Bytes()
	if err != nil {
		return nil, eris.Wrapf(err, "redis: read deleted page %s", id)
	}
	return model.DecodePage(data)
}

func (s *RedisStore) ListPages(ctx context.Context, filter ListFilter) ([]model.PageSummary, error) {
	start := int64(max(filter.Offset, 0))
	stop := int64(-1)
	if filter.Limit > 0 {
		stop = start + int64(filter.Limit) - 1
	}
	ids, err := s.client.ZRange(ctx, s.orderKey(), start, stop).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list pages")
	}
	out := make([]model.PageSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	urls, err := s.client.HMGet(ctx, s.urlKey(), ids...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list page urls")
	}
	for i, id := range ids {
		url, _ := urls[i].(string)
		out = append(out, model.PageSummary{ID: id, URL: url})
	}
	return out, nil
}
