package sessiondata

import (
	"sync"

	"github.com/jrsteele09/go-sso-client/store"
)

// Registry hands out exactly one Data per durable store name.
type Registry struct {
	lock sync.Mutex
	data map[string]*Data
}

func NewRegistry() *Registry {
	return &Registry{data: make(map[string]*Data)}
}

// Open returns the Data for repo, creating it and reading the durable store on first use.
func (r *Registry) Open(repo store.Repo, options ...Option) (*Data, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if d, ok := r.data[repo.Name()]; ok {
		return d, nil
	}
	d := New(repo, options...)
	if err := d.ReadFromDurableStore(); err != nil {
		return nil, err
	}
	r.data[repo.Name()] = d
	return d, nil
}

// Forget drops the instance for name, so the next Open reads the durable store again.
func (r *Registry) Forget(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.data, name)
}
