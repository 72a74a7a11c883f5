package sqlite

import (
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/pkg/errors"
)

// decodeAll converts stored documents into typed records.
func decodeAll[T any](collection string, docs []model.JSONMap) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := model.FromJSONMap(doc, &rec); err != nil {
			return nil, errors.NewStorage("decode "+collection, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func decodeOne[T any](collection string, doc model.JSONMap) (*T, error) {
	var rec T
	if err := model.FromJSONMap(doc, &rec); err != nil {
		return nil, errors.NewStorage("decode "+collection, err)
	}
	return &rec, nil
}

func encode(v interface{}) (model.JSONMap, error) {
	doc, err := model.ToJSONMap(v)
	if err != nil {
		return nil, errors.BadRequest("record is not serializable", err)
	}
	return doc, nil
}

func int64Args(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
