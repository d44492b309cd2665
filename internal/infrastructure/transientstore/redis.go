package transientstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
)

// Provider hands out Redis-backed transient stores keyed by store name. All
// entries carry the configured TTL so abandoned batches expire on their own.
type Provider struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewProvider(cfg *config.Config, log zerolog.Logger) *Provider {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Provider{
		client: client,
		ttl:    cfg.BatchTTL,
		log:    log.With().Str("component", "transient-store").Logger(),
	}
}

func (p *Provider) Store(name string) batch.TransientStore {
	return &RedisStore{
		client: p.client,
		name:   name,
		ttl:    p.ttl,
		log:    p.log.With().Str("store", name).Logger(),
	}
}

// Ping verifies the Redis connection.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}

// RedisStore keeps batch state under three keys per id: a marker recording
// that the batch exists, a hash of session parameters, and a hash of
// finalized file entries indexed by file position. The marker is separate so
// a batch created with no parameters still resolves as present.
type RedisStore struct {
	client *redis.Client
	name   string
	ttl    time.Duration
	log    zerolog.Logger
}

func (s *RedisStore) markerKey(id string) string {
	return s.name + ":batch:" + id
}

func (s *RedisStore) paramsKey(id string) string {
	return s.name + ":batch:" + id + ":params"
}

func (s *RedisStore) filesKey(id string) string {
	return s.name + ":batch:" + id + ":files"
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.markerKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check batch %s: %w", id, err)
	}
	return n > 0, nil
}

// GetParameters returns the stored parameters, or a nil map when the id has
// no parameter entry at all.
func (s *RedisStore) GetParameters(ctx context.Context, id string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.paramsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get batch %s parameters: %w", id, err)
	}
	if len(values) == 0 {
		// HGetAll cannot tell an empty hash from a missing one.
		n, err := s.client.Exists(ctx, s.paramsKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check batch %s parameters: %w", id, err)
		}
		if n == 0 {
			return nil, nil
		}
		return map[string]string{}, nil
	}
	return values, nil
}

func (s *RedisStore) PutParameters(ctx context.Context, id string, params map[string]string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.markerKey(id), "1", s.ttl)
	// Redis cannot hold an empty hash, so a batch without parameters keeps
	// only its marker. Resolution treats that as an empty parameter map.
	if len(params) > 0 {
		fields := make(map[string]any, len(params))
		for k, v := range params {
			fields[k] = v
		}
		pipe.HSet(ctx, s.paramsKey(id), fields)
		pipe.Expire(ctx, s.paramsKey(id), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put batch %s parameters: %w", id, err)
	}
	return nil
}

func (s *RedisStore) PutFileEntry(ctx context.Context, id string, entry batch.FileEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal file entry %s/%s: %w", id, entry.Index, err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.filesKey(id), entry.Index, payload)
	pipe.Expire(ctx, s.filesKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put file entry %s/%s: %w", id, entry.Index, err)
	}
	return nil
}

func (s *RedisStore) GetFileEntries(ctx context.Context, id string) ([]batch.FileEntry, error) {
	values, err := s.client.HGetAll(ctx, s.filesKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get file entries %s: %w", id, err)
	}

	entries := make([]batch.FileEntry, 0, len(values))
	for index, payload := range values {
		var entry batch.FileEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal file entry %s/%s: %w", id, index, err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.markerKey(id), s.paramsKey(id), s.filesKey(id)).Err(); err != nil {
		return fmt.Errorf("remove batch %s: %w", id, err)
	}
	return nil
}
