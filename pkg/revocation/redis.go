package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix はRedisのキーのデフォルトの接頭辞。
const DefaultRedisPrefix = "headline:revocation:"

// RedisConfig はRedisStoreの設定。
type RedisConfig struct {
	// Addr はRedisのアドレス。
	Addr string `yaml:"addr"`
	// Password はRedisのパスワード。
	Password string `yaml:"password"`
	// DB はRedisのデータベース番号。
	DB int `yaml:"db"`
	// Prefix はキーの接頭辞。
	Prefix string `yaml:"prefix"`
}

// RedisStore はRedisのソート済みセットに失効情報を保存するStore。
// 種類ごとに1つのキーを使い、スコアに有効期限（ミリ秒）を持つ。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// OpenRedis はRedisに接続し、疎通を確認する。
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return NewRedisStore(client, cfg.Prefix), nil
}

// NewRedisStore は既存のクライアントからRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// key は種類ごとのキーを返す。
func (s *RedisStore) key(kind Kind) string {
	return s.prefix + string(kind)
}

// Revoke は失効情報を登録する。
func (s *RedisStore) Revoke(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	err := s.client.ZAdd(ctx, s.key(entry.Kind), redis.Z{
		Score:  float64(entry.ExpiresAt.UnixMilli()),
		Member: entry.Subject,
	}).Err()
	if err != nil {
		return fmt.Errorf("失効情報の登録に失敗: %w", err)
	}
	return nil
}

// List はnowの時点で有効な失効情報を返す。
func (s *RedisStore) List(ctx context.Context, now time.Time) ([]Entry, error) {
	var entries []Entry
	for _, kind := range []Kind{KindToken, KindUser} {
		members, err := s.client.ZRangeByScoreWithScores(ctx, s.key(kind), &redis.ZRangeBy{
			Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("失効情報の取得に失敗: %w", err)
		}
		for _, m := range members {
			subject, ok := m.Member.(string)
			if !ok {
				continue
			}
			entries = append(entries, Entry{
				Kind:      kind,
				Subject:   subject,
				ExpiresAt: time.UnixMilli(int64(m.Score)),
			})
		}
	}
	return entries, nil
}

// Prune はnowの時点で不要になった失効情報を削除する。
func (s *RedisStore) Prune(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, kind := range []Kind{KindToken, KindUser} {
		n, err := s.client.ZRemRangeByScore(ctx, s.key(kind), "-inf", strconv.FormatInt(now.UnixMilli(), 10)).Result()
		if err != nil {
			return total, fmt.Errorf("失効情報の削除に失敗: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

// Close は接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
