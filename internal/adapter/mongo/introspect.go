package mongo

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
)

const (
	sampleSize    = 50
	maxExamples   = 3
	maxExampleLen = 50
)

// introspect samples every user collection. A collection that fails to
// sample or count degrades to an empty descriptor so one bad collection
// cannot hide the rest
func (a *Adapter) introspect(ctx context.Context) (*adapter.Database, error) {
	db := a.client.Database(a.dbName)

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "list collections")
	}
	sort.Strings(names)

	out := &adapter.Database{Name: a.name, Kind: adapter.KindDocument}
	for _, name := range names {
		if ValidateCollection(name) != nil {
			continue
		}
		desc, err := a.describeCollection(ctx, name)
		if err != nil {
			a.log.Warn().Str("database", a.name).Str("collection", name).Err(err).
				Msg("collection introspection failed, recording empty descriptor")
			desc = adapter.Collection{Name: name}
		}
		out.Collections = append(out.Collections, desc)
	}
	return out, nil
}

func (a *Adapter) describeCollection(ctx context.Context, name string) (adapter.Collection, error) {
	coll := a.client.Database(a.dbName).Collection(name)

	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return adapter.Collection{}, err
	}

	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return adapter.Collection{}, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return adapter.Collection{}, err
	}

	desc := adapter.Collection{
		Name:     name,
		DocCount: count,
		Fields:   inferFields(docs),
	}

	// index names are nice to have
	if ic, err := coll.Indexes().List(ctx); err == nil {
		var specs []bson.M
		if err := ic.All(ctx, &specs); err == nil {
			for _, s := range specs {
				if n, ok := s["name"].(string); ok {
					desc.Indexes = append(desc.Indexes, n)
				}
			}
		}
	}
	return desc, nil
}

// inferFields merges the sampled documents into a field list. The type
// of a field comes from its first observation; up to three distinct
// short values are kept as examples
func inferFields(docs []bson.M) []adapter.Field {
	order := make([]string, 0, 16)
	byName := map[string]*adapter.Field{}

	for _, doc := range docs {
		for k, v := range doc {
			f, ok := byName[k]
			if !ok {
				f = &adapter.Field{Name: k, Type: bsonTypeName(v)}
				byName[k] = f
				order = append(order, k)
			}
			addExample(f, v)
		}
	}

	sort.Strings(order)
	out := make([]adapter.Field, 0, len(order))
	for _, k := range order {
		out = append(out, *byName[k])
	}
	return out
}

func addExample(f *adapter.Field, v any) {
	if len(f.Examples) >= maxExamples {
		return
	}
	ex := exampleValue(v)
	if ex == nil {
		return
	}
	for _, seen := range f.Examples {
		if seen == ex {
			return
		}
	}
	f.Examples = append(f.Examples, ex)
}

// exampleValue keeps scalars whose string form is short enough and
// drops everything else
func exampleValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		if len(t) > maxExampleLen {
			return nil
		}
		return t
	case int32, int64, float64, bool:
		if s := fmt.Sprint(t); len(s) <= maxExampleLen {
			return t
		}
		return nil
	default:
		return nil
	}
}

func bsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int64:
		return "int"
	case float64:
		return "double"
	case bool:
		return "bool"
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case bson.M, bson.D:
		return "object"
	case bson.A:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
