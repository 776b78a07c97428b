package mongo

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	perr "querypilot/internal/platform/errors"
)

var collectionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateCollection rejects names the server treats specially or that
// could smuggle operators: the system. namespace, NUL bytes, dollar
// signs and anything outside the identifier alphabet
func ValidateCollection(name string) error {
	switch {
	case strings.HasPrefix(name, "system."):
		return perr.Newf(perr.ErrorCodeInvalidCollection, "collection %q is in the system namespace", name)
	case strings.ContainsRune(name, 0):
		return perr.Newf(perr.ErrorCodeInvalidCollection, "collection name contains NUL byte")
	case strings.Contains(name, "$"):
		return perr.Newf(perr.ErrorCodeInvalidCollection, "collection %q contains $", name)
	case !collectionNameRe.MatchString(name):
		return perr.Newf(perr.ErrorCodeInvalidCollection, "collection %q is not a valid identifier", name)
	}
	return nil
}

// EnsureLimitStage appends a $limit stage when the pipeline has none.
// The second return reports whether the cap applies
func EnsureLimitStage(pipeline []map[string]any, maxRows int) ([]map[string]any, bool) {
	if maxRows <= 0 {
		return pipeline, false
	}
	for _, stage := range pipeline {
		if _, ok := stage["$limit"]; ok {
			return pipeline, false
		}
	}
	out := make([]map[string]any, len(pipeline), len(pipeline)+1)
	copy(out, pipeline)
	return append(out, map[string]any{"$limit": maxRows}), true
}

// hitRowCap reports whether a result of n documents filled the cap,
// whether the $limit came from the pipeline or was appended here
func hitRowCap(n, maxRows int) bool {
	return maxRows > 0 && n >= maxRows
}

func toBSONPipeline(stages []map[string]any) bson.A {
	out := make(bson.A, 0, len(stages))
	for _, s := range stages {
		out = append(out, bson.M(s))
	}
	return out
}

// normalizeDoc makes a driver document JSON friendly: ObjectIDs become
// hex strings and nested documents are normalized recursively
func normalizeDoc(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case bson.M:
		return normalizeDoc(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		arr := make([]any, len(t))
		for i, e := range t {
			arr[i] = normalizeValue(e)
		}
		return arr
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
