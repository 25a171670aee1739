package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Object is a blob held by Memory.
type Object struct {
	ContentType string
	Data        []byte
}

// Memory is a process-local Store for development and tests.
type Memory struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]Object
}

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, objects: make(map[string]Object)}
}

func (m *Memory) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{ContentType: contentType, Data: data}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) PublicURL(key string) string {
	return joinURL(m.baseURL, key)
}

func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
