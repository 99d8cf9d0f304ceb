package repofake

import (
	"sync"

	"github.com/jrsteele09/go-sso-client/store"
)

var _ store.Repo = (*FakeStoreRepo)(nil)

type FakeStoreRepo struct {
	name   string
	values map[string]string
	writes int
	putErr error
	lock   sync.RWMutex
}

func NewFakeStoreRepo(name string) *FakeStoreRepo {
	return &FakeStoreRepo{
		name:   name,
		values: make(map[string]string),
	}
}

func (r *FakeStoreRepo) Name() string {
	return r.name
}

func (r *FakeStoreRepo) Get(key string) (string, bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *FakeStoreRepo) GetAll() (map[string]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	values := make(map[string]string, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return values, nil
}

func (r *FakeStoreRepo) PutAll(values map[string]string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	for k, v := range values {
		r.values[k] = v
	}
	r.writes++
	return nil
}

func (r *FakeStoreRepo) Delete(keys ...string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

func (r *FakeStoreRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values = make(map[string]string)
	return nil
}

// Set writes a single raw row, for seeding tests.
func (r *FakeStoreRepo) Set(key, value string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
}

// Writes counts PutAll calls.
func (r *FakeStoreRepo) Writes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.writes
}

// FailWrites makes every PutAll return err until it is called again with nil.
func (r *FakeStoreRepo) FailWrites(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.putErr = err
}
