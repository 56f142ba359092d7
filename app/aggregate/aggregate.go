// Package aggregate implements relational-style view queries as explicit
// query plans: an ordered list of stages (match, lookup, derive, project)
// executed against document collections. Plans are pure reads and can be
// unit-tested stage-by-stage against in-memory fixtures, independent of
// the SQL adapters that back the collections in production.
package aggregate

import (
	"context"
	"fmt"
)

// Document is a single record in flight through a pipeline. Values are
// scalars, []uint64 id lists, []Document join results, or nested
// Documents.
type Document map[string]any

// Filter is an equality match on field values. A slice value means the
// field must equal any element (an IN match).
type Filter map[string]any

// Collection is a readable set of documents. Implementations push the
// filter down to their backing store where they can.
type Collection interface {
	Find(ctx context.Context, filter Filter) ([]Document, error)
}

// Stage transforms a working set of documents. Stages never mutate their
// input; each returns fresh documents so a plan is safe to run
// concurrently with any number of other readers.
type Stage interface {
	Name() string
	Apply(ctx context.Context, in []Document) ([]Document, error)
}

// Pipeline is a query plan: a source collection, an initial match filter
// pushed down to the source, and an ordered list of stages.
type Pipeline struct {
	source Collection
	match  Filter
	stages []Stage
}

func New(source Collection, match Filter, stages ...Stage) *Pipeline {
	return &Pipeline{source: source, match: match, stages: stages}
}

func (p *Pipeline) Run(ctx context.Context) ([]Document, error) {
	docs, err := p.source.Find(ctx, p.match)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	for _, stage := range p.stages {
		docs, err = stage.Apply(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}
	return docs, nil
}

// Lookup left-joins documents from another collection. For every input
// document it finds the From documents whose ForeignField equals the
// value (or any element of the list) under LocalField, and stores them
// under As. When LocalField holds a list, the join result preserves the
// list's order. Project, when set, restricts joined documents to the
// named fields. Single collapses the join result to its first element,
// or nil when the join is empty.
type Lookup struct {
	From         Collection
	LocalField   string
	ForeignField string
	As           string
	Project      []string
	Single       bool
}

func (l Lookup) Name() string { return "lookup:" + l.As }

func (l Lookup) Apply(ctx context.Context, in []Document) ([]Document, error) {
	out := make([]Document, 0, len(in))
	for _, doc := range in {
		local, isList := asList(doc[l.LocalField])

		var joined []Document
		if len(local) > 0 {
			found, err := l.From.Find(ctx, Filter{l.ForeignField: local})
			if err != nil {
				return nil, err
			}
			if isList {
				joined = reorder(found, l.ForeignField, local)
			} else {
				joined = found
			}
		}

		if l.Project != nil {
			projected := make([]Document, len(joined))
			for i, j := range joined {
				projected[i] = project(j, l.Project)
			}
			joined = projected
		}

		next := clone(doc)
		if l.Single {
			if len(joined) > 0 {
				next[l.As] = joined[0]
			} else {
				next[l.As] = nil
			}
		} else {
			if joined == nil {
				joined = []Document{}
			}
			next[l.As] = joined
		}
		out = append(out, next)
	}
	return out, nil
}

// Derive adds a computed field to every document.
type Derive struct {
	Field string
	Fn    func(Document) any
}

func (d Derive) Name() string { return "derive:" + d.Field }

func (d Derive) Apply(_ context.Context, in []Document) ([]Document, error) {
	out := make([]Document, 0, len(in))
	for _, doc := range in {
		next := clone(doc)
		next[d.Field] = d.Fn(doc)
		out = append(out, next)
	}
	return out, nil
}

// Project restricts every document to an allowlist of fields. Fields the
// document does not carry are skipped, never invented.
type Project struct {
	Fields []string
}

func (p Project) Name() string { return "project" }

func (p Project) Apply(_ context.Context, in []Document) ([]Document, error) {
	out := make([]Document, 0, len(in))
	for _, doc := range in {
		out = append(out, project(doc, p.Fields))
	}
	return out, nil
}

// Joined returns the join result stored under field, tolerating a
// missing or not-yet-joined value.
func Joined(doc Document, field string) []Document {
	joined, _ := doc[field].([]Document)
	return joined
}

func clone(doc Document) Document {
	next := make(Document, len(doc)+1)
	for k, v := range doc {
		next[k] = v
	}
	return next
}

func project(doc Document, fields []string) Document {
	next := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			next[f] = v
		}
	}
	return next
}

// asList normalizes a local-field value to a slice of join keys. The
// bool reports whether the original value was already a list.
func asList(v any) ([]any, bool) {
	switch vv := v.(type) {
	case nil:
		return nil, false
	case []any:
		return vv, true
	case []uint64:
		list := make([]any, len(vv))
		for i, id := range vv {
			list[i] = id
		}
		return list, true
	case []string:
		list := make([]any, len(vv))
		for i, s := range vv {
			list[i] = s
		}
		return list, true
	default:
		return []any{vv}, false
	}
}

// reorder arranges joined documents to follow the order of keys,
// dropping keys that matched nothing. Duplicate keys repeat the match.
func reorder(docs []Document, field string, keys []any) []Document {
	byKey := make(map[any]Document, len(docs))
	for _, d := range docs {
		byKey[d[field]] = d
	}
	out := make([]Document, 0, len(keys))
	for _, k := range keys {
		if d, ok := byKey[k]; ok {
			out = append(out, d)
		}
	}
	return out
}
