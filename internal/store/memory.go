package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// UniqueField makes field unique across the documents of collection. Null values are not checked.
func UniqueField(collection, field string) MemoryOption {
	return func(m *Memory) {
		m.unique[collection] = append(m.unique[collection], field)
	}
}

// WithPollInterval sets the subscription polling interval.
func WithPollInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.hub = NewHub(d)
	}
}

// Memory is a process-local Store. Every write is serialized under one lock,
// which makes Increment linearizable per document.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	unique      map[string][]string
	hub         *Hub
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]map[string]Document),
		unique:      make(map[string][]string),
		hub:         NewHub(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a new sortable document id.
func NewID() string {
	return ksuid.New().String()
}

func (m *Memory) Create(ctx context.Context, collection string, fields Document) (string, error) {
	id := NewID()
	if err := m.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) CreateWithID(ctx context.Context, collection, id string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("create %s: empty id", collection)
	}

	doc := make(Document, len(fields)+1)
	for k, v := range fields {
		if nv, ok := v.(IfNullValue); ok {
			v = nv.Value
		}
		doc[k] = Normalize(v)
	}
	doc["id"] = id

	m.mu.Lock()
	coll := m.collection(collection)
	if _, exists := coll[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("create %s/%s: %w", collection, id, ErrDuplicate)
	}
	if err := m.checkUnique(collection, id, doc); err != nil {
		m.mu.Unlock()
		return err
	}
	coll[id] = doc
	m.mu.Unlock()

	m.hub.Notify(collection)
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Document, guards ...Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if !matchAll(doc, guards) {
		m.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrConditionFailed)
	}

	next := doc.Clone()
	merge(next, fields)
	if err := m.checkUnique(collection, id, next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.collections[collection][id] = next
	m.mu.Unlock()

	m.hub.Notify(collection)
	return nil
}

func (m *Memory) Increment(ctx context.Context, collection, id string, inc Increment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("increment %s/%s: %w", collection, id, ErrNotFound)
	}
	if !matchAll(doc, inc.Where) {
		m.mu.Unlock()
		return fmt.Errorf("increment %s/%s: %w", collection, id, ErrConditionFailed)
	}

	current, _ := Normalize(doc[inc.Field]).(int64)
	result := current + inc.Delta
	if result < inc.Min {
		m.mu.Unlock()
		return fmt.Errorf("increment %s/%s: %w", collection, id, ErrConditionFailed)
	}

	next := doc.Clone()
	if inc.MaxField != "" {
		max, _ := Normalize(doc[inc.MaxField]).(int64)
		if result > max {
			m.mu.Unlock()
			return fmt.Errorf("increment %s/%s: %w", collection, id, ErrConditionFailed)
		}
		if result == max {
			merge(next, inc.AtMax)
		}
	}
	next[inc.Field] = result
	m.collections[collection][id] = next
	m.mu.Unlock()

	m.hub.Notify(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.collections[collection][id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.collections[collection], id)
	m.mu.Unlock()

	m.hub.Notify(collection)
	return nil
}

func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0)
	for _, doc := range m.collections[collection] {
		if q.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	m.mu.RUnlock()

	sortDocuments(docs, q.OrderBy)
	return docs, nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.hub.Subscribe(ctx, collection, func(ctx context.Context) ([]Document, error) {
		return m.List(ctx, collection, q)
	}), nil
}

// Close cancels all live subscriptions.
func (m *Memory) Close() error {
	m.hub.Close()
	return nil
}

func (m *Memory) collection(name string) map[string]Document {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]Document)
		m.collections[name] = coll
	}
	return coll
}

// checkUnique must be called with m.mu held.
func (m *Memory) checkUnique(collection, id string, doc Document) error {
	for _, field := range m.unique[collection] {
		v := doc[field]
		if v == nil {
			continue
		}
		for otherID, other := range m.collections[collection] {
			if otherID != id && other[field] == v {
				return fmt.Errorf("%s.%s %v: %w", collection, field, v, ErrDuplicate)
			}
		}
	}
	return nil
}

func merge(dst, fields Document) {
	for k, v := range fields {
		if k == "id" {
			continue
		}
		if nv, ok := v.(IfNullValue); ok {
			if dst[k] != nil {
				continue
			}
			v = nv.Value
		}
		dst[k] = Normalize(v)
	}
}
