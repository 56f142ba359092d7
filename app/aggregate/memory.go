package aggregate

import "context"

// Memory is an in-memory Collection used as a pipeline fixture in tests
// and for small static datasets.
type Memory []Document

func (m Memory) Find(_ context.Context, filter Filter) ([]Document, error) {
	out := make([]Document, 0)
	for _, doc := range m {
		if matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matches(doc Document, filter Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if list, isList := asList(want); isList {
			found := false
			for _, w := range list {
				if got == w {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		} else if got != want {
			return false
		}
	}
	return true
}
