package engine

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store for tests. UpdateObject holds the lock for
// the whole read-modify-write, matching the transactional contract.
type memStore struct {
	mu      sync.Mutex
	objects map[string]ConfigTree
	puts    int
	failPut bool
	failGet error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]ConfigTree)}
}

func (s *memStore) GetObject(_ context.Context, name string) (ConfigTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	tree, ok := s.objects[name]
	if !ok {
		return nil, NewPermanentError("config object not found", nil).
			WithCode(ErrCodeNotFound).WithObject(name)
	}
	return cloneValue(tree).(map[string]any), nil
}

func (s *memStore) PutObject(_ context.Context, name string, tree ConfigTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return NewTransientError("store write failed", nil).WithCode(ErrCodeStoreFailed)
	}
	s.puts++
	s.objects[name] = cloneValue(tree).(map[string]any)
	return nil
}

func (s *memStore) DeleteObject(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

func (s *memStore) ListObjectNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) HasObject(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[name]
	return ok, nil
}

func (s *memStore) UpdateObject(_ context.Context, name string, fn func(ConfigTree) (ConfigTree, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current ConfigTree
	if tree, ok := s.objects[name]; ok {
		current = cloneValue(tree).(map[string]any)
	}
	updated, err := fn(current)
	if err != nil {
		return err
	}
	s.objects[name] = updated
	return nil
}

type fakeRegistry struct {
	components  []string
	definitions []*ModificationDefinition
}

func (r *fakeRegistry) ActiveComponents(_ context.Context) ([]string, error) {
	return r.components, nil
}

func (r *fakeRegistry) Definitions(_ context.Context) ([]*ModificationDefinition, error) {
	return r.definitions, nil
}

type fakeInstaller struct {
	installed []string
}

func (i *fakeInstaller) InstallComponent(_ context.Context, id string) error {
	i.installed = append(i.installed, id)
	return nil
}

type fakeImporter struct {
	store    *memStore
	seeds    map[string]ConfigTree
	imported []string
}

func (i *fakeImporter) ImportObject(ctx context.Context, name string) error {
	if exists, _ := i.store.HasObject(ctx, name); exists {
		return nil
	}
	seed, ok := i.seeds[name]
	if !ok {
		return NewPermanentError("no seed for config object", nil).
			WithCode(ErrCodeNotFound).WithObject(name)
	}
	i.imported = append(i.imported, name)
	return i.store.PutObject(ctx, name, seed)
}

type fakeGate struct {
	denied map[string]string
}

func (g *fakeGate) Allow(_ context.Context, def *ModificationDefinition) (bool, string, error) {
	if reason, ok := g.denied[def.ID]; ok {
		return false, reason, nil
	}
	return true, "", nil
}
