package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/scout/internal/domain/model"
)

func runLogContract(t *testing.T, open func(t *testing.T) LogStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("list filters and pages newest first", func(t *testing.T) {
		s := open(t)
		for i, l := range []model.IngestionLog{
			{ConnectorID: "museum", Kind: model.LogKindFetch, Records: 3},
			{ConnectorID: "museum", Kind: model.LogKindManual},
			{ConnectorID: "festival", Kind: model.LogKindFetch, Meta: map[string]string{"page": "2"}},
			{ConnectorID: "museum", Kind: model.LogKindFetch, Records: 5},
		} {
			l.FetchedAt = base.Add(time.Duration(i) * time.Minute)
			if _, err := s.Add(ctx, l); err != nil {
				t.Fatalf("add %d: %v", i, err)
			}
		}

		page, err := s.List(ctx, LogFilter{ConnectorID: "museum", Kind: model.LogKindFetch})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if page.Total != 2 || len(page.Items) != 2 || page.Items[0].Records != 5 {
			t.Fatalf("expected the two museum fetches newest first, got %+v", page)
		}

		page, _ = s.List(ctx, LogFilter{Page: 2, PageSize: 3})
		if page.Total != 4 || len(page.Items) != 1 || page.Items[0].Records != 3 {
			t.Fatalf("expected the oldest log alone on page 2, got %+v", page)
		}
	})

	t.Run("add fills defaults and get round trips", func(t *testing.T) {
		s := open(t)
		added, err := s.Add(ctx, model.IngestionLog{ConnectorID: "museum", URL: "https://example.org/feed",
			Meta: map[string]string{"etag": "abc"}})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if added.ID == "" || added.Kind != model.LogKindManual || added.FetchedAt.IsZero() {
			t.Fatalf("defaults not applied: %+v", added)
		}
		got, err := s.Get(ctx, added.ID)
		if err != nil || got.URL != added.URL || got.Meta["etag"] != "abc" {
			t.Fatalf("get: %+v %v", got, err)
		}
		if _, err := s.Add(ctx, added); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("expected conflict re-adding an id, got %v", err)
		}
		if _, err := s.Add(ctx, model.IngestionLog{}); !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("expected configuration error without connector, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		added, _ := s.Add(ctx, model.IngestionLog{ConnectorID: "museum"})
		if err := s.Delete(ctx, added.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, added.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if err := s.Delete(ctx, added.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found deleting twice, got %v", err)
		}
	})
}

func TestMemoryLogStore(t *testing.T) {
	runLogContract(t, func(_ *testing.T) LogStore {
		return NewMemoryLogStore(WithIDGenerator(sequentialIDs("log")))
	})
}

func TestSQLiteLogStore(t *testing.T) {
	runLogContract(t, func(t *testing.T) LogStore {
		d := openTestSQLite(t, filepath.Join(t.TempDir(), "scout.db"))
		t.Cleanup(func() { _ = d.Close() })
		return d.Logs()
	})
}

func TestSQLiteState_Schedules(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scout.db")
	d := openTestSQLite(t, path)
	due := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []model.Schedule{
		{ConnectorID: "museum", Cadence: "@hourly", Enabled: true, NextDueAt: due},
		{ConnectorID: "festival", Cadence: "0 6 * * *"},
	} {
		if err := d.State().SaveSchedule(ctx, s); err != nil {
			t.Fatalf("save %s: %v", s.ConnectorID, err)
		}
	}
	if err := d.State().SaveSchedule(ctx, model.Schedule{ConnectorID: "festival", Cadence: "0 7 * * *"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestSQLite(t, path)
	defer func() { _ = reopened.Close() }()
	all, err := reopened.State().LoadSchedules(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("load: %+v %v", all, err)
	}
	if all[0].ConnectorID != "festival" || all[0].Cadence != "0 7 * * *" || all[0].Enabled {
		t.Fatalf("unexpected festival schedule %+v", all[0])
	}
	if !all[1].Enabled || !all[1].NextDueAt.Equal(due) || !all[1].LastRunAt.IsZero() {
		t.Fatalf("unexpected museum schedule %+v", all[1])
	}

	if err := reopened.State().DeleteSchedule(ctx, "festival"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ = reopened.State().LoadSchedules(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one schedule after delete, got %+v", all)
	}
}
