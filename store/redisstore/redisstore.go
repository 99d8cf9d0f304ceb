package redisstore

import (
	"context"
	"time"

	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ssoclient:"

var _ store.Repo = (*Store)(nil)

// Store keeps the rows as fields of one Redis hash.
type Store struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
}

type Option func(*Store)

// WithTimeout bounds every Redis round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

func New(client redis.UniversalClient, name string, options ...Option) (*Store, error) {
	if client == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[redisstore.New] client")
	}
	if name == "" {
		return nil, internalerrors.Wrapf(internalerrors.ErrFieldNotSpecified, "[redisstore.New] name")
	}
	s := &Store{client: client, key: keyPrefix + name, timeout: 5 * time.Second}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) Name() string {
	return "redis:" + s.key
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.context()
	defer cancel()
	v, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "Store.Get HGet")
	}
	return v, true, nil
}

func (s *Store) GetAll() (map[string]string, error) {
	ctx, cancel := s.context()
	defer cancel()
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "Store.GetAll HGetAll")
	}
	return values, nil
}

func (s *Store) PutAll(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()
	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return errors.Wrap(err, "Store.PutAll HSet")
	}
	return nil
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()
	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil {
		return errors.Wrap(err, "Store.Delete HDel")
	}
	return nil
}

func (s *Store) Clear() error {
	ctx, cancel := s.context()
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "Store.Clear Del")
	}
	return nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
