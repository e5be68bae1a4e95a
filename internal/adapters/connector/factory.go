package connector

import (
	"fmt"
	"sort"

	"github.com/okian/scout/internal/config"
)

// FromConfig builds a registry holding every configured connector, enabled
// or not; enablement is a run-time setting.
func FromConfig(connectors map[string]config.Connector, opts ...HTTPOption) (*Registry, error) {
	ids := make([]string, 0, len(connectors))
	for id := range connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reg := NewRegistry()
	for _, id := range ids {
		c := connectors[id]
		n := NewNormalizer(FieldMap(c.Fields))
		var f Fetcher
		switch c.Kind {
		case config.ConnectorKindFile:
			f = NewFileSource(c.Path, n)
		case config.ConnectorKindHTTP:
			f = NewHTTPSource(c.URL, opts...)
		default:
			return nil, fmt.Errorf("%w %q for connector %s", ErrUnknownKind, c.Kind, id)
		}
		if err := reg.Register(NewSource(id, f, n)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
