package connector

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/scout/internal/domain/model"
)

// FileSource reads records from a YAML or JSON document on disk, either a
// top-level list or an object with a "records" list. The file is re-read
// on every Fetch.
type FileSource struct {
	path       string
	normalizer *Normalizer
}

// NewFileSource creates a fetcher for path. The normalizer resolves the
// updated_at field used for since filtering.
func NewFileSource(path string, n *Normalizer) *FileSource {
	if n == nil {
		n = NewNormalizer(nil)
	}
	return &FileSource{path: path, normalizer: n}
}

// Fetch yields records whose updated_at is after since. Records without
// updated_at are always yielded.
func (f *FileSource) Fetch(ctx context.Context, since time.Time) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		records, err := f.load()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, raw := range records {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !changedSince(f.normalizer, raw, since) {
				continue
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func (f *FileSource) load() ([]RawRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, model.WrapKind("connector.file", model.ErrConnector, err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, model.WrapKind("connector.file", model.ErrConnector, fmt.Errorf("%s: %w", f.path, err))
	}
	return records, nil
}

// decodeRecords parses YAML, and therefore JSON, into raw records.
func decodeRecords(data []byte) ([]RawRecord, error) {
	var doc any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	doc = stringKeys(doc)
	if m, ok := doc.(map[string]any); ok {
		doc = m["records"]
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("decode: expected a list of records, got %T", doc)
	}
	out := make([]RawRecord, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: expected an object, got %T", i, item)
		}
		out = append(out, RawRecord(m))
	}
	return out, nil
}

// changedSince reports whether raw was updated after since.
func changedSince(n *Normalizer, raw RawRecord, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	v, ok := n.Lookup(raw, FieldUpdatedAt)
	if !ok {
		return true
	}
	var ts time.Time
	switch t := v.(type) {
	case time.Time:
		ts = t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return true
		}
		ts = parsed
	default:
		return true
	}
	return ts.After(since)
}
