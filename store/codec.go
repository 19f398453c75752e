package store

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// encodeDoc turns doc into a BSON document with the given _id and version.
func encodeDoc(doc interface{}, id string, version int64) (bson.D, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var fields bson.D
	if err := bson.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := make(bson.D, 0, len(fields)+2)
	out = append(out, bson.E{Key: "_id", Value: id})
	for _, f := range fields {
		if f.Key == "_id" || f.Key == versionField {
			continue
		}
		out = append(out, f)
	}
	return append(out, bson.E{Key: versionField, Value: version}), nil
}

func versionOf(raw bson.Raw) int64 {
	v := raw.Lookup(versionField)
	if n, ok := v.Int64OK(); ok {
		return n
	}
	if n, ok := v.Int32OK(); ok {
		return int64(n)
	}
	return 0
}

func rawValueOf(v interface{}) (bson.RawValue, error) {
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: data}, nil
}

// compareRaw orders values of the types the engine sorts on: strings,
// numbers and datetimes. Missing values sort first.
func compareRaw(a, b bson.RawValue) int {
	if len(a.Value) == 0 || len(b.Value) == 0 {
		return len(a.Value) - len(b.Value)
	}
	if as, ok := a.StringValueOK(); ok {
		if bs, ok := b.StringValueOK(); ok {
			return strings.Compare(as, bs)
		}
	}
	if at, ok := a.DateTimeOK(); ok {
		if bt, ok := b.DateTimeOK(); ok {
			return cmpFloat(float64(at), float64(bt))
		}
	}
	an, aok := numberOf(a)
	bn, bok := numberOf(b)
	if aok && bok {
		return cmpFloat(an, bn)
	}
	return 0
}

func numberOf(v bson.RawValue) (float64, bool) {
	if n, ok := v.Int32OK(); ok {
		return float64(n), true
	}
	if n, ok := v.Int64OK(); ok {
		return float64(n), true
	}
	if f, ok := v.DoubleOK(); ok {
		return f, true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// decodeAll appends every raw document to the slice out points to.
func decodeAll(docs []bson.Raw, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("decode results: out must be a pointer to a slice, got %T", out)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, raw := range docs {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return fmt.Errorf("decode results: %w", err)
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}
