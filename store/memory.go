package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

type memDoc struct {
	raw     bson.Raw
	version int64
}

// MemoryStore keeps BSON documents in process. It honours the same
// versioned-transaction contract as MongoStore and backs tests and
// single-instance deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memDoc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memDoc)}
}

// lookup also returns tombstones so versions keep increasing across deletes;
// the bool reports whether a live document exists.
func (m *MemoryStore) lookup(key docKey) (memDoc, bool) {
	docs, ok := m.collections[key.collection]
	if !ok {
		return memDoc{}, false
	}
	d, ok := docs[key.id]
	return d, ok && d.raw != nil
}

func (m *MemoryStore) put(key docKey, raw bson.Raw, version int64) {
	docs, ok := m.collections[key.collection]
	if !ok {
		docs = make(map[string]memDoc)
		m.collections[key.collection] = docs
	}
	docs[key.id] = memDoc{raw: raw, version: version}
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	d, ok := m.lookup(docKey{collection, id})
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := bson.Unmarshal(d.raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (m *MemoryStore) Append(ctx context.Context, collection string, doc interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	raw, err := marshalDoc(doc, id, 1)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.put(docKey{collection, id}, raw, 1)
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey{collection, id}
	if current, ok := m.lookup(key); ok {
		m.put(key, nil, current.version+1)
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := make(map[string]bson.RawValue)
	for field, value := range q.conditions() {
		v, err := rawValueOf(value)
		if err != nil {
			return fmt.Errorf("query %s: %w", q.Collection, err)
		}
		want[field] = v
	}

	m.mu.RLock()
	matched := make([]bson.Raw, 0)
	for _, d := range m.collections[q.Collection] {
		if d.raw == nil || !matches(d.raw, want) {
			continue
		}
		matched = append(matched, d.raw)
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareRaw(matched[i].Lookup(q.OrderBy), matched[j].Lookup(q.OrderBy))
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && int64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}
	return decodeAll(matched, out)
}

func matches(raw bson.Raw, want map[string]bson.RawValue) bool {
	for field, v := range want {
		if !raw.Lookup(field).Equal(v) {
			return false
		}
	}
	return true
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:  m,
		reads:  make(map[docKey]int64),
		writes: make(map[docKey]bson.Raw),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memAppend struct {
	key docKey
	raw bson.Raw
}

type memTx struct {
	store   *MemoryStore
	reads   map[docKey]int64
	writes  map[docKey]bson.Raw // nil value marks a delete
	order   []docKey
	appends []memAppend
}

func (tx *memTx) observe(key docKey) (memDoc, bool) {
	tx.store.mu.RLock()
	d, ok := tx.store.lookup(key)
	tx.store.mu.RUnlock()
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = d.version
	}
	return d, ok
}

func (tx *memTx) Get(collection, id string, out interface{}) (bool, error) {
	key := docKey{collection, id}
	if raw, pending := tx.writes[key]; pending {
		if raw == nil {
			return false, nil
		}
		return true, bson.Unmarshal(raw, out)
	}
	for _, a := range tx.appends {
		if a.key == key {
			return true, bson.Unmarshal(a.raw, out)
		}
	}
	d, ok := tx.observe(key)
	if !ok {
		return false, nil
	}
	if err := bson.Unmarshal(d.raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (tx *memTx) stage(key docKey, raw bson.Raw) {
	if _, seen := tx.reads[key]; !seen {
		tx.observe(key)
	}
	if _, pending := tx.writes[key]; !pending {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = raw
}

func (tx *memTx) Set(collection, id string, doc interface{}) error {
	raw, err := marshalDoc(doc, id, 0)
	if err != nil {
		return err
	}
	tx.stage(docKey{collection, id}, raw)
	return nil
}

func (tx *memTx) Delete(collection, id string) error {
	tx.stage(docKey{collection, id}, nil)
	return nil
}

func (tx *memTx) Append(collection string, doc interface{}) (string, error) {
	id := uuid.NewString()
	raw, err := marshalDoc(doc, id, 1)
	if err != nil {
		return "", err
	}
	tx.appends = append(tx.appends, memAppend{key: docKey{collection, id}, raw: raw})
	return id, nil
}

func (tx *memTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range tx.reads {
		current, _ := s.lookup(key)
		if current.version != version {
			return fmt.Errorf("%w: %s/%s", ErrConflict, key.collection, key.id)
		}
	}
	for _, key := range tx.order {
		current, _ := s.lookup(key)
		s.put(key, tx.writes[key], current.version+1)
	}
	for _, a := range tx.appends {
		s.put(a.key, a.raw, 1)
	}
	return nil
}

func marshalDoc(doc interface{}, id string, version int64) (bson.Raw, error) {
	d, err := encodeDoc(doc, id, version)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bson.Raw(data), nil
}
