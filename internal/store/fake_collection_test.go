package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection is an in-memory stand-in for the subset of
// mongo.Collection the repositories use. Filters support top-level equality
// only; updates support $set, $setOnInsert and $inc.
type fakeCollection struct {
	t    *testing.T
	mu   sync.Mutex
	docs []bson.M

	updateErr error
	findErr   error
	deleteErr error
	countErr  error
	dupOnce   bool
}

func newFakeCollection(t *testing.T) *fakeCollection {
	t.Helper()
	return &fakeCollection{t: t}
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.dupOnce {
		f.dupOnce = false
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}

	filterDoc := f.asM(filter)
	updateDoc := f.asM(update)

	if idx := f.indexOf(filterDoc); idx >= 0 {
		f.apply(f.docs[idx], updateDoc, false)
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}

	if !upsertRequested(opts) {
		return &mongo.UpdateResult{}, nil
	}

	doc := bson.M{}
	for key, val := range filterDoc {
		doc[key] = val
	}
	f.apply(doc, updateDoc, true)
	f.docs = append(f.docs, doc)

	return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: primitive.NewObjectID()}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.findErr, nil)
	}

	idx := f.indexOf(f.asM(filter))
	if idx < 0 {
		return mongo.NewSingleResultFromDocument(bson.M{}, mongo.ErrNoDocuments, nil)
	}

	return mongo.NewSingleResultFromDocument(copyDoc(f.docs[idx]), nil, nil)
}

func (f *fakeCollection) FindOneAndUpdate(_ context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.updateErr, nil)
	}

	filterDoc := f.asM(filter)
	updateDoc := f.asM(update)

	idx := f.indexOf(filterDoc)
	if idx < 0 {
		doc := bson.M{}
		for key, val := range filterDoc {
			doc[key] = val
		}
		f.docs = append(f.docs, doc)
		idx = len(f.docs) - 1
	}
	f.apply(f.docs[idx], updateDoc, false)

	return mongo.NewSingleResultFromDocument(copyDoc(f.docs[idx]), nil, nil)
}

func (f *fakeCollection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}

	filterDoc := f.asM(filter)
	matches := make([]bson.M, 0)
	for _, doc := range f.docs {
		if matchesFilter(doc, filterDoc) {
			matches = append(matches, copyDoc(doc))
		}
	}

	if sortKeys := sortSpec(opts); len(sortKeys) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			for _, key := range sortKeys {
				if c := compareValues(matches[i][key], matches[j][key]); c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	docs := make([]interface{}, len(matches))
	for i, doc := range matches {
		docs[i] = doc
	}

	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

func (f *fakeCollection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return nil, f.deleteErr
	}

	idx := f.indexOf(f.asM(filter))
	if idx < 0 {
		return &mongo.DeleteResult{}, nil
	}

	f.docs = append(f.docs[:idx], f.docs[idx+1:]...)
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (f *fakeCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.countErr != nil {
		return 0, f.countErr
	}

	filterDoc := f.asM(filter)
	var count int64
	for _, doc := range f.docs {
		if matchesFilter(doc, filterDoc) {
			count++
		}
	}

	return count, nil
}

func (f *fakeCollection) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeCollection) indexOf(filter bson.M) int {
	for i, doc := range f.docs {
		if matchesFilter(doc, filter) {
			return i
		}
	}
	return -1
}

func (f *fakeCollection) apply(doc bson.M, update bson.M, inserting bool) {
	if set, ok := update["$set"].(bson.M); ok {
		for key, val := range set {
			doc[key] = val
		}
	}
	if inserting {
		if setOnInsert, ok := update["$setOnInsert"].(bson.M); ok {
			for key, val := range setOnInsert {
				doc[key] = val
			}
		}
	}
	if inc, ok := update["$inc"].(bson.M); ok {
		for key, val := range inc {
			current, _ := doc[key].(int64)
			delta, ok := val.(int64)
			if !ok {
				f.t.Fatalf("fake collection only supports int64 $inc, got %T", val)
			}
			doc[key] = current + delta
		}
	}
}

func (f *fakeCollection) asM(value interface{}) bson.M {
	switch v := value.(type) {
	case bson.M:
		return v
	case bson.D:
		out := bson.M{}
		for _, elem := range v {
			out[elem.Key] = elem.Value
		}
		return out
	default:
		f.t.Fatalf("unexpected filter/update type %T", value)
		return nil
	}
}

func matchesFilter(doc, filter bson.M) bool {
	for key, want := range filter {
		if compareValues(doc[key], want) != 0 {
			return false
		}
	}
	return true
}

func upsertRequested(opts []*options.UpdateOptions) bool {
	for _, opt := range opts {
		if opt != nil && opt.Upsert != nil && *opt.Upsert {
			return true
		}
	}
	return false
}

func sortSpec(opts []*options.FindOptions) []string {
	for _, opt := range opts {
		if opt == nil || opt.Sort == nil {
			continue
		}
		spec, ok := opt.Sort.(bson.D)
		if !ok {
			continue
		}
		keys := make([]string, 0, len(spec))
		for _, elem := range spec {
			keys = append(keys, elem.Key)
		}
		return keys
	}
	return nil
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	default:
		if fmt.Sprint(a) == fmt.Sprint(b) {
			return 0
		}
		return 1
	}
}

func copyDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for key, val := range doc {
		out[key] = val
	}
	return out
}
