package search

import (
	"fmt"
	"strings"

	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/store"
)

// LabelFunc resolves the display label of a referenced record, for FK label
// enrichment. Returning "" skips the label field.
type LabelFunc func(kind string, id int64) string

// BuildDocument converts one storage record into its index document. Both
// the bulk reindex path and the incremental write path call this; there is
// no second serialization route.
//
// The document carries every configured column verbatim, a "fulltext" blob
// concatenating the search fields, a "label_<field>" per FK reference and a
// "scope_<level>" per ownership level so the engine can filter on scope
// without joining.
func BuildDocument(cfg *registry.EntityConfig, rec store.Record, labelFor LabelFunc) map[string]interface{} {
	doc := make(map[string]interface{}, len(cfg.Columns)+len(cfg.FKFields)+len(cfg.OwnershipHierarchy)+1)
	for _, col := range cfg.Columns {
		doc[col.Name] = rec[col.Name]
	}

	var fulltext []string
	for _, field := range cfg.SearchFields {
		if v, ok := rec[field]; ok && v != nil {
			fulltext = append(fulltext, fmt.Sprintf("%v", v))
		}
	}
	doc["fulltext"] = strings.Join(fulltext, " ")

	if labelFor != nil {
		for field, targetKind := range cfg.FKFields {
			id, ok := asDocInt64(rec[field])
			if !ok {
				continue
			}
			if label := labelFor(targetKind, id); label != "" {
				doc["label_"+field] = label
			}
		}
	}

	for _, level := range cfg.OwnershipHierarchy {
		if v, ok := rec[level.Field]; ok {
			doc["scope_"+level.Level] = v
		}
	}
	return doc
}

// IndexMapping infers the engine field mapping from the entity's columns.
func IndexMapping(cfg *registry.EntityConfig) map[string]string {
	mapping := make(map[string]string, len(cfg.Columns)+len(cfg.OwnershipHierarchy)+1)
	for _, col := range cfg.Columns {
		mapping[col.Name] = engineType(col.Type)
	}
	mapping["fulltext"] = "text"
	for field := range cfg.FKFields {
		mapping["label_"+field] = "text"
	}
	for _, level := range cfg.OwnershipHierarchy {
		mapping["scope_"+level.Level] = "long"
	}
	return mapping
}

func engineType(t registry.ColumnType) string {
	switch t {
	case registry.TypeInt:
		return "long"
	case registry.TypeFloat:
		return "double"
	case registry.TypeBool:
		return "boolean"
	case registry.TypeTime:
		return "date"
	default:
		return "text"
	}
}

func asDocInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
