package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/adapters/http/api"
	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/internal/adapters/repository"
	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/domain/inbox"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schedule"
	"github.com/okian/scout/internal/domain/types"
)

// mockDependencies records the last call and returns canned results.
type mockDependencies struct {
	run      model.Run
	runs     []model.Run
	page     repository.Page
	profile  model.TalentProfile
	cand     model.DedupeCandidate
	item     model.InboxItem
	items    []model.InboxItem
	audit    []model.AuditEntry
	settings  model.Settings
	schedules []model.Schedule
	logPage   repository.LogPage
	log       model.IngestionLog
	err       error

	gotConnectors []string
	gotOutcome    model.ExecutionOutcome
	gotFilter     repository.Filter
	gotInbox      inbox.Filter
	gotDecision   inbox.Decision
	gotLimit      int
	gotOperator   string
	gotReason     string
	gotSettings   model.Settings
	gotSchedule   model.Schedule
	gotPatch      schedule.Patch
	gotLogFilter  repository.LogFilter
	gotLog        model.IngestionLog
	gotID         string
}

func (m *mockDependencies) StartRun(_ context.Context, ids []string) (model.Run, error) {
	m.gotConnectors = ids
	return m.run, m.err
}

func (m *mockDependencies) GetRun(_ context.Context, _ string) (model.Run, error) {
	return m.run, m.err
}

func (m *mockDependencies) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	m.gotLimit = limit
	return m.runs, m.err
}

func (m *mockDependencies) ReportConnectorResult(_ context.Context, _, _ string, o model.ExecutionOutcome) (model.Run, error) {
	m.gotOutcome = o
	return m.run, m.err
}

func (m *mockDependencies) SearchTalents(_ context.Context, f repository.Filter) (repository.Page, error) {
	m.gotFilter = f
	return m.page, m.err
}

func (m *mockDependencies) GetTalent(_ context.Context, _ string) (model.TalentProfile, error) {
	return m.profile, m.err
}

func (m *mockDependencies) ArchiveTalent(_ context.Context, _, operator string) (model.TalentProfile, error) {
	m.gotOperator = operator
	return m.profile, m.err
}

func (m *mockDependencies) GetCandidate(_ context.Context, _ string) (model.DedupeCandidate, error) {
	return m.cand, m.err
}

func (m *mockDependencies) RecordHistory(_ context.Context, _ string) ([]model.DedupeCandidate, error) {
	return nil, m.err
}

func (m *mockDependencies) ReopenRecord(_ context.Context, _, operator, reason string) (model.DedupeCandidate, error) {
	m.gotOperator, m.gotReason = operator, reason
	return m.cand, m.err
}

func (m *mockDependencies) PendingItems(_ context.Context, f inbox.Filter) ([]model.InboxItem, error) {
	m.gotInbox = f
	return m.items, m.err
}

func (m *mockDependencies) GetInboxItem(_ context.Context, _ string) (model.InboxItem, error) {
	return m.item, m.err
}

func (m *mockDependencies) Decide(_ context.Context, _ string, d inbox.Decision) (model.InboxItem, error) {
	m.gotDecision = d
	return m.item, m.err
}

func (m *mockDependencies) Assign(_ context.Context, _, assignee string) (model.InboxItem, error) {
	m.gotOperator = assignee
	return m.item, m.err
}

func (m *mockDependencies) Audit(_ context.Context, limit int) ([]model.AuditEntry, error) {
	m.gotLimit = limit
	return m.audit, m.err
}

func (m *mockDependencies) Settings() model.Settings { return m.settings }

func (m *mockDependencies) UpdateSettings(_ context.Context, next model.Settings) (model.Settings, error) {
	m.gotSettings = next
	if m.err != nil {
		return model.Settings{}, m.err
	}
	return next, nil
}

func (m *mockDependencies) ListSchedules(_ context.Context) ([]model.Schedule, error) {
	return m.schedules, m.err
}

func (m *mockDependencies) GetSchedule(_ context.Context, id string) (model.Schedule, error) {
	m.gotID = id
	return model.Schedule{ConnectorID: id}, m.err
}

func (m *mockDependencies) CreateSchedule(_ context.Context, s model.Schedule) (model.Schedule, error) {
	m.gotSchedule = s
	return s, m.err
}

func (m *mockDependencies) UpdateSchedule(_ context.Context, id string, patch schedule.Patch) (model.Schedule, error) {
	m.gotID, m.gotPatch = id, patch
	return model.Schedule{ConnectorID: id}, m.err
}

func (m *mockDependencies) DeleteSchedule(_ context.Context, id string) error {
	m.gotID = id
	return m.err
}

func (m *mockDependencies) ListLogs(_ context.Context, f repository.LogFilter) (repository.LogPage, error) {
	m.gotLogFilter = f
	return m.logPage, m.err
}

func (m *mockDependencies) GetLog(_ context.Context, id string) (model.IngestionLog, error) {
	m.gotID = id
	return m.log, m.err
}

func (m *mockDependencies) AddLog(_ context.Context, l model.IngestionLog) (model.IngestionLog, error) {
	m.gotLog = l
	l.ID = "log-1"
	return l, m.err
}

func (m *mockDependencies) DeleteLog(_ context.Context, id string) error {
	m.gotID = id
	return m.err
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var e types.Error
	_ = json.NewDecoder(w.Body).Decode(&e)
	return e.Code
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{
			run: model.Run{ID: "r1", State: model.RunQueued, Connectors: []string{"X"}},
			settings: model.Settings{
				Thresholds: model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3},
				Connectors: map[string]bool{"X": true},
			},
		}
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		mux := http.NewServeMux()
		api.NewServer(deps, stats, 100).Register(context.Background(), mux)

		Convey("Then health, metrics and stats respond", func() {
			health := serve(mux, http.MethodGet, "/healthz", "")
			So(health.Code, ShouldEqual, http.StatusOK)
			So(health.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			So(serve(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodGet, "/stats", "").Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("When starting a run", func() {
			w := serve(mux, http.MethodPost, "/runs", `{"connectors":["X","Y"]}`)

			Convey("Then it is accepted and the connectors are forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.gotConnectors, ShouldResemble, []string{"X", "Y"})
				var run types.Run
				So(json.NewDecoder(w.Body).Decode(&run), ShouldBeNil)
				So(run.ID, ShouldEqual, "r1")
				So(run.State, ShouldEqual, "QUEUED")
			})
		})

		Convey("When the run body is malformed", func() {
			w := serve(mux, http.MethodPost, "/runs", `{`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			})
		})

		Convey("When listing runs with limits", func() {
			ok := serve(mux, http.MethodGet, "/runs?limit=5", "")
			tooMany := serve(mux, http.MethodGet, "/runs?limit=101", "")
			negative := serve(mux, http.MethodGet, "/runs?limit=-1", "")

			Convey("Then only valid limits reach the service", func() {
				So(ok.Code, ShouldEqual, http.StatusOK)
				So(ok.Body.String(), ShouldStartWith, "[]")
				So(deps.gotLimit, ShouldEqual, 5)
				So(tooMany.Code, ShouldEqual, http.StatusBadRequest)
				So(negative.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an external worker reports a failure", func() {
			w := serve(mux, http.MethodPost, "/runs/r1/connectors/X/result", `{"succeeded":false,"error":"boom"}`)

			Convey("Then the outcome is forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotOutcome.Succeeded, ShouldBeFalse)
				So(deps.gotOutcome.Error, ShouldEqual, "boom")
			})
		})

		Convey("When searching talents", func() {
			deps.page = repository.Page{Items: []model.TalentProfile{{ID: "p1"}}, Total: 1, Page: 1, PageSize: 20}
			w := serve(mux, http.MethodGet, "/talents?q=cruz&affiliation=gsps&include_archived=true&page=2&page_size=20", "")

			Convey("Then the filter is parsed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotFilter, ShouldResemble, repository.Filter{
					Query: "cruz", Affiliation: "gsps", IncludeArchived: true, Page: 2, PageSize: 20,
				})
				var page types.TalentPage
				So(json.NewDecoder(w.Body).Decode(&page), ShouldBeNil)
				So(page.Items[0].ID, ShouldEqual, "p1")
			})

			Convey("Then bad flags are refused", func() {
				So(serve(mux, http.MethodGet, "/talents?include_archived=maybe", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When archiving without an operator", func() {
			w := serve(mux, http.MethodPost, "/talents/p1/archive", `{}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When reopening a record", func() {
			deps.cand = model.DedupeCandidate{ID: "c2", Supersedes: "c1"}
			w := serve(mux, http.MethodPost, "/records/rec1/reopen", `{"operator":"ops","reason":"wrong club"}`)

			Convey("Then a new candidate is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.gotOperator, ShouldEqual, "ops")
				So(deps.gotReason, ShouldEqual, "wrong club")
			})
		})

		Convey("When listing the inbox and history", func() {
			inboxW := serve(mux, http.MethodGet, "/inbox?assignee=ana&limit=3", "")
			history := serve(mux, http.MethodGet, "/records/rec1/history", "")

			Convey("Then empty lists are encoded as arrays", func() {
				So(inboxW.Code, ShouldEqual, http.StatusOK)
				So(deps.gotInbox, ShouldResemble, inbox.Filter{Assignee: "ana", Limit: 3})
				So(strings.TrimSpace(inboxW.Body.String()), ShouldEqual, "[]")
				So(strings.TrimSpace(history.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When deciding an inbox item", func() {
			w := serve(mux, http.MethodPost, "/inbox/i1/decision", `{"outcome":" confirmed_new ","reviewer":"ana","notes":"different player"}`)

			Convey("Then the outcome is normalized", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotDecision.Outcome, ShouldEqual, model.InboxConfirmedNew)
				So(deps.gotDecision.Reviewer, ShouldEqual, "ana")
				So(deps.gotDecision.Notes, ShouldEqual, "different player")
			})
		})

		Convey("When assigning without an assignee", func() {
			w := serve(mux, http.MethodPost, "/inbox/i1/assign", `{"assignee":" "}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When reading and updating settings", func() {
			get := serve(mux, http.MethodGet, "/settings", "")
			put := serve(mux, http.MethodPut, "/settings", `{"auto_merge_threshold":0.8,"no_match_threshold":0.2,"connectors":{"X":false}}`)

			Convey("Then the flat form is used both ways", func() {
				So(get.Body.String(), ShouldContainSubstring, `"auto_merge_threshold":0.9`)
				So(put.Code, ShouldEqual, http.StatusOK)
				So(deps.gotSettings.Thresholds, ShouldResemble, model.Thresholds{AutoMerge: 0.8, NoMatch: 0.2})
				So(deps.gotSettings.Connectors, ShouldResemble, map[string]bool{"X": false})
			})
		})

		Convey("When listing schedules", func() {
			deps.schedules = []model.Schedule{
				{ConnectorID: "a", Cadence: "@hourly", Enabled: true},
				{ConnectorID: "b", Cadence: "@daily"},
				{ConnectorID: "c", Cadence: "@daily", Enabled: true},
			}
			enabled := serve(mux, http.MethodGet, "/schedules?enabled=true&page=2&page_size=1", "")
			all := serve(mux, http.MethodGet, "/schedules", "")

			Convey("Then they are filtered and paged", func() {
				So(enabled.Code, ShouldEqual, http.StatusOK)
				var page types.SchedulePage
				So(json.NewDecoder(enabled.Body).Decode(&page), ShouldBeNil)
				So(page.Total, ShouldEqual, 2)
				So(page.Items, ShouldHaveLength, 1)
				So(page.Items[0].ConnectorID, ShouldEqual, "c")
				So(all.Body.String(), ShouldContainSubstring, `"total":3`)
				So(all.Body.String(), ShouldContainSubstring, `"cadence_cron":"@hourly"`)
				So(serve(mux, http.MethodGet, "/schedules?enabled=sometimes", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When creating a schedule", func() {
			w := serve(mux, http.MethodPost, "/schedules", `{"connector":"X","cadence_cron":"0 6 * * *"}`)

			Convey("Then it is created enabled by default", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.gotSchedule, ShouldResemble, model.Schedule{ConnectorID: "X", Cadence: "0 6 * * *", Enabled: true})
			})
		})

		Convey("When the schedule already exists", func() {
			deps.err = model.NewKind("schedule.create", model.ErrConflict, "exists")
			w := serve(mux, http.MethodPost, "/schedules", `{"connector":"X","cadence_cron":"@daily"}`)

			Convey("Then it is a conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When patching and deleting a schedule", func() {
			put := serve(mux, http.MethodPut, "/schedules/X", `{"enabled":false}`)

			Convey("Then only the given fields are forwarded", func() {
				So(put.Code, ShouldEqual, http.StatusOK)
				So(deps.gotID, ShouldEqual, "X")
				So(deps.gotPatch.Cadence, ShouldBeNil)
				So(*deps.gotPatch.Enabled, ShouldBeFalse)
				So(serve(mux, http.MethodDelete, "/schedules/X", "").Code, ShouldEqual, http.StatusNoContent)
				So(serve(mux, http.MethodGet, "/schedules/X", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When working with ingestion logs", func() {
			list := serve(mux, http.MethodGet, "/logs?connector=X&kind=fetch&page=2&page_size=10", "")
			created := serve(mux, http.MethodPost, "/logs", `{"connector":"X","url":"https://example.org","records":4}`)

			Convey("Then the filter and body are forwarded", func() {
				So(list.Code, ShouldEqual, http.StatusOK)
				So(deps.gotLogFilter, ShouldResemble, repository.LogFilter{ConnectorID: "X", Kind: "fetch", Page: 2, PageSize: 10})
				So(list.Body.String(), ShouldContainSubstring, `"items":[]`)
				So(created.Code, ShouldEqual, http.StatusCreated)
				So(deps.gotLog.ConnectorID, ShouldEqual, "X")
				So(deps.gotLog.Records, ShouldEqual, 4)
				So(created.Body.String(), ShouldContainSubstring, `"id":"log-1"`)
				So(serve(mux, http.MethodDelete, "/logs/log-1", "").Code, ShouldEqual, http.StatusNoContent)
				So(serve(mux, http.MethodGet, "/logs?page_size=101", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a route does not exist", func() {
			So(serve(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodDelete, "/runs", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", model.NewKind("x", model.ErrNotFound, "item"), http.StatusNotFound, "not_found"},
		{"invalid state", model.NewKind("x", model.ErrInvalidState, "decided"), http.StatusConflict, "conflict"},
		{"conflict", model.NewKind("x", model.ErrConflict, "version"), http.StatusConflict, "conflict"},
		{"configuration", model.NewKind("x", model.ErrConfiguration, "disabled"), http.StatusBadRequest, "bad_request"},
		{"invalid decision", inbox.ErrInvalidDecision, http.StatusUnprocessableEntity, "invalid_decision"},
		{"backpressure", queue.ErrFull, http.StatusTooManyRequests, "backpressure"},
		{"not started", service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}

	Convey("Given a server whose dependencies fail", t, func() {
		for _, tc := range cases {
			Convey("When the failure is "+tc.name, func() {
				deps := &mockDependencies{err: tc.err}
				mux := http.NewServeMux()
				api.NewServer(deps, &mockStatsProvider{}, 0).Register(context.Background(), mux)
				w := serve(mux, http.MethodPost, "/inbox/i1/decision", `{"outcome":"REJECTED","reviewer":"ana"}`)

				Convey("Then it maps to the matching status", func() {
					So(w.Code, ShouldEqual, tc.status)
					So(errorCode(w), ShouldEqual, tc.code)
				})
			})
		}
	})
}
