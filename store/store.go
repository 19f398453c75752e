// Package store is the document store the XP engine persists through.
//
// Transactions are optimistic: every document carries a version, a
// transaction remembers the versions it read and commits only when none of
// them moved. A lost race surfaces as ErrConflict and nothing is written, so
// the caller can rerun the whole unit of work.
package store

import (
	"context"
	"errors"
)

const (
	CollectionTrackLevels   = "track_levels"
	CollectionOverallLevels = "overall_levels"
	CollectionActivityLog   = "activity_log"

	versionField = "_v"
)

var (
	// ErrConflict means a document read by the transaction changed before commit.
	ErrConflict = errors.New("store: transaction conflict")
	// ErrUnavailable wraps backend failures that are not conflicts.
	ErrUnavailable = errors.New("store: unavailable")
)

// Query selects documents of one collection. An empty Field matches every
// document; Where adds further equality conditions. A zero Limit means no
// limit.
type Query struct {
	Collection string
	Field      string
	Value      interface{}
	Where      map[string]interface{}
	OrderBy    string
	Descending bool
	Limit      int64
}

// Tx is the view a transaction function works against. Reads observe the
// transaction's own pending writes.
type Tx interface {
	Get(collection, id string, out interface{}) (bool, error)
	Set(collection, id string, doc interface{}) error
	Delete(collection, id string) error
	Append(collection string, doc interface{}) (string, error)
}

// Store is implemented by MemoryStore and MongoStore.
type Store interface {
	Get(ctx context.Context, collection, id string, out interface{}) (bool, error)
	// RunTransaction makes a single attempt; retrying on ErrConflict is up to the caller.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Append(ctx context.Context, collection string, doc interface{}) (string, error)
	Query(ctx context.Context, q Query, out interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Close(ctx context.Context) error
}

// conditions flattens Field/Value and Where into one equality set.
func (q Query) conditions() map[string]interface{} {
	conds := make(map[string]interface{}, len(q.Where)+1)
	for k, v := range q.Where {
		conds[k] = v
	}
	if q.Field != "" {
		conds[q.Field] = q.Value
	}
	return conds
}

type docKey struct {
	collection string
	id         string
}
