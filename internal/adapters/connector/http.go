package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/scout/internal/domain/model"
)

// Defaults for HTTP sources.
const (
	DefaultRequestTimeout = 30 * time.Second
	UserAgent             = "scout-connector/1.0"
	maxPages              = 1000
)

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// HTTPSource pulls JSON pages of the form {"records": [...], "next": "..."}
// from an endpoint. The first request carries ?since=<RFC3339>; "next" is
// followed, resolved against the current page url, until it is empty.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates a fetcher for endpoint.
func NewHTTPSource(endpoint string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type page struct {
	Records []map[string]any `json:"records"`
	Next    string           `json:"next"`
}

// Fetch yields records page by page; a failing page ends the sequence
// with a model.ErrConnector error.
func (s *HTTPSource) Fetch(ctx context.Context, since time.Time) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		next, err := s.firstURL(since)
		if err != nil {
			yield(nil, err)
			return
		}
		for i := 0; next != nil && i < maxPages; i++ {
			p, err := s.get(ctx, next.String())
			if err != nil {
				yield(nil, err)
				return
			}
			for _, r := range p.Records {
				if !yield(RawRecord(r), nil) {
					return
				}
			}
			if p.Next == "" {
				return
			}
			if next, err = next.Parse(p.Next); err != nil {
				yield(nil, model.WrapKind("connector.http", model.ErrConnector, fmt.Errorf("next page: %w", err)))
				return
			}
		}
	}
}

func (s *HTTPSource) firstURL(since time.Time) (*url.URL, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, model.WrapKind("connector.http", model.ErrConnector, err)
	}
	if !since.IsZero() {
		q := u.Query()
		q.Set("since", since.UTC().Format(time.RFC3339))
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (s *HTTPSource) get(ctx context.Context, target string) (page, error) {
	fail := func(err error) (page, error) {
		return page{}, model.WrapKind("connector.http", model.ErrConnector, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fail(fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("error fetching %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fail(fmt.Errorf("received non-2xx response: %d", resp.StatusCode))
	}
	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return fail(fmt.Errorf("error decoding page: %w", err))
	}
	return p, nil
}
