package store

import "context"

// NullStore is a KVStore that stores nothing. It exists so that a deployment
// without a configured Valkey degrades to "always miss" instead of failing:
// every Get reports a missing key, every write is a no-op.
type NullStore struct{}

var _ KVStore = NullStore{}

func (NullStore) SetValue(ctx context.Context, key, value string) error { return nil }

func (NullStore) SetValueWithTTL(ctx context.Context, key, value string, ttlSeconds int) error {
	return nil
}

func (NullStore) GetValue(ctx context.Context, key string) (ValkeyResponse, error) {
	return ValkeyResponse{}, ErrKeyNotFound
}

func (NullStore) GetTTL(ctx context.Context, key string) (int, error) { return -2, nil }

func (NullStore) ListKeys(ctx context.Context, pattern string) ([]string, error) { return nil, nil }

func (NullStore) DeleteValue(ctx context.Context, key string) error { return nil }

func (NullStore) Close() error { return nil }

// OpenStore returns a connected Valkey store, or a NullStore when the
// connection cannot be established. Callers that require a real store should
// use NewValkeyStore directly and handle the error.
func OpenStore() KVStore {
	kv, err := NewValkeyStore()
	if err != nil {
		return NullStore{}
	}
	return kv
}
