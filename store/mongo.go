package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists documents in MongoDB. Transactions need a replica set
// (or sharded cluster); writes inside them are guarded by the _v field.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoStore(client *mongo.Client, database *mongo.Database) *MongoStore {
	return &MongoStore{client: client, database: database}
}

// EnsureIndexes creates the indexes history and leaderboard queries rely on.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.database.Collection(CollectionActivityLog).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity log index: %w", err)
	}
	_, err = m.database.Collection(CollectionActivityLog).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "track", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity log track index: %w", err)
	}
	_, err = m.database.Collection(CollectionOverallLevels).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "totalXP", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create overall levels index: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, collection, id string, out interface{}) (bool, error) {
	err := m.database.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return true, nil
}

func (m *MongoStore) Append(ctx context.Context, collection string, doc interface{}) (string, error) {
	id := primitive.NewObjectID().Hex()
	d, err := encodeDoc(doc, id, 1)
	if err != nil {
		return "", err
	}
	if _, err := m.database.Collection(collection).InsertOne(ctx, d); err != nil {
		return "", fmt.Errorf("%w: append %s: %v", ErrUnavailable, collection, err)
	}
	return id, nil
}

func (m *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := m.database.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (m *MongoStore) Query(ctx context.Context, q Query, out interface{}) error {
	filter := bson.M{}
	for field, value := range q.conditions() {
		filter[field] = value
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := m.database.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("%w: query %s: %v", ErrUnavailable, q.Collection, err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, q.Collection, err)
	}
	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// RunTransaction runs fn inside a MongoDB session transaction. The driver
// retries transient server errors itself; version mismatches abort with
// ErrConflict and are left to the caller.
func (m *MongoStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %v", ErrUnavailable, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		tx := &mongoTx{
			db:     m.database,
			ctx:    sc,
			reads:  make(map[docKey]int64),
			writes: make(map[docKey]interface{}),
		}
		if err := fn(tx); err != nil {
			return nil, err
		}
		return nil, tx.commit()
	})
	return err
}

type mongoAppend struct {
	key docKey
	doc bson.D
}

type mongoTx struct {
	db      *mongo.Database
	ctx     context.Context // carries the session
	reads   map[docKey]int64
	writes  map[docKey]interface{} // nil value marks a delete
	order   []docKey
	appends []mongoAppend
}

func (tx *mongoTx) fetch(key docKey) (bson.Raw, bool, error) {
	var raw bson.Raw
	err := tx.db.Collection(key.collection).FindOne(tx.ctx, bson.M{"_id": key.id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, seen := tx.reads[key]; !seen {
			tx.reads[key] = 0
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = versionOf(raw)
	}
	return raw, true, nil
}

func (tx *mongoTx) Get(collection, id string, out interface{}) (bool, error) {
	key := docKey{collection, id}
	if doc, pending := tx.writes[key]; pending {
		if doc == nil {
			return false, nil
		}
		return true, roundTrip(doc, out)
	}
	for _, a := range tx.appends {
		if a.key == key {
			return true, roundTrip(a.doc, out)
		}
	}
	raw, ok, err := tx.fetch(key)
	if err != nil || !ok {
		return false, err
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (tx *mongoTx) stage(key docKey, doc interface{}) error {
	if _, seen := tx.reads[key]; !seen {
		if _, _, err := tx.fetch(key); err != nil {
			return err
		}
	}
	if _, pending := tx.writes[key]; !pending {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = doc
	return nil
}

func (tx *mongoTx) Set(collection, id string, doc interface{}) error {
	return tx.stage(docKey{collection, id}, doc)
}

func (tx *mongoTx) Delete(collection, id string) error {
	return tx.stage(docKey{collection, id}, nil)
}

func (tx *mongoTx) Append(collection string, doc interface{}) (string, error) {
	id := primitive.NewObjectID().Hex()
	d, err := encodeDoc(doc, id, 1)
	if err != nil {
		return "", err
	}
	tx.appends = append(tx.appends, mongoAppend{key: docKey{collection, id}, doc: d})
	return id, nil
}

func (tx *mongoTx) commit() error {
	for _, key := range tx.order {
		coll := tx.db.Collection(key.collection)
		version := tx.reads[key]
		doc := tx.writes[key]

		if doc == nil {
			if version == 0 {
				continue
			}
			res, err := coll.DeleteOne(tx.ctx, bson.M{"_id": key.id, versionField: version})
			if err != nil {
				return classify("delete", key, err)
			}
			if res.DeletedCount == 0 {
				return fmt.Errorf("%w: %s/%s", ErrConflict, key.collection, key.id)
			}
			continue
		}

		encoded, err := encodeDoc(doc, key.id, version+1)
		if err != nil {
			return err
		}
		if version == 0 {
			if _, err := coll.InsertOne(tx.ctx, encoded); err != nil {
				return classify("insert", key, err)
			}
			continue
		}
		res, err := coll.ReplaceOne(tx.ctx, bson.M{"_id": key.id, versionField: version}, encoded)
		if err != nil {
			return classify("replace", key, err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: %s/%s", ErrConflict, key.collection, key.id)
		}
	}

	for _, a := range tx.appends {
		if _, err := tx.db.Collection(a.key.collection).InsertOne(tx.ctx, a.doc); err != nil {
			return classify("append", a.key, err)
		}
	}
	return nil
}

// writeConflictCode is the server's WriteConflict error code.
const writeConflictCode = 112

// classify maps driver errors raised inside a transaction onto ErrConflict or
// ErrUnavailable. Losing the driver's error labels here means WithTransaction
// will not retry by itself; the engine's retry loop takes over.
func classify(op string, key docKey, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s %s/%s", ErrConflict, op, key.collection, key.id)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode)) {
		return fmt.Errorf("%w: %s %s/%s", ErrConflict, op, key.collection, key.id)
	}
	return fmt.Errorf("%w: %s %s/%s: %v", ErrUnavailable, op, key.collection, key.id, err)
}

func roundTrip(doc, out interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}
