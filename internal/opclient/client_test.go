package opclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/types"
	"github.com/okian/scout/internal/opclient"
)

const base = "http://scout.test"

func newClient() *opclient.Client {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	return opclient.New(base+"/", opclient.WithHTTPClient(hc))
}

func TestClient(t *testing.T) {
	Convey("Given a client against a mocked server", t, func() {
		c := newClient()
		defer httpmock.DeactivateAndReset()
		ctx := context.Background()

		Convey("When starting a run", func() {
			var got types.StartRunRequest
			httpmock.RegisterResponder(http.MethodPost, base+"/runs", func(req *http.Request) (*http.Response, error) {
				if err := decodeJSON(req, &got); err != nil {
					return nil, err
				}
				return httpmock.NewJsonResponse(http.StatusAccepted, types.Run{ID: "r1", State: "QUEUED", Connectors: got.Connectors})
			})
			run, err := c.StartRun(ctx, []string{"X", "Y"})

			Convey("Then the connectors are sent and the run decoded", func() {
				So(err, ShouldBeNil)
				So(got.Connectors, ShouldResemble, []string{"X", "Y"})
				So(run.ID, ShouldEqual, "r1")
				So(c.BaseURL(), ShouldEqual, base)
			})
		})

		Convey("When searching talents", func() {
			httpmock.RegisterResponderWithQuery(http.MethodGet, base+"/talents",
				"q=cruz&include_archived=true&page_size=5",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, types.TalentPage{Total: 1, Page: 1, PageSize: 5}))
			page, err := c.SearchTalents(ctx, opclient.SearchQuery{Query: "cruz", IncludeArchived: true, PageSize: 5})

			Convey("Then only the set parameters are sent", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
			})
		})

		Convey("When listing enabled schedules", func() {
			httpmock.RegisterResponderWithQuery(http.MethodGet, base+"/schedules", "enabled=true&page_size=10",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, types.SchedulePage{Total: 2, Page: 1, PageSize: 10}))
			on := true
			page, err := c.ListSchedules(ctx, opclient.ScheduleQuery{Enabled: &on, PageSize: 10})

			Convey("Then the filter is sent", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 2)
			})
		})

		Convey("When deleting a schedule", func() {
			httpmock.RegisterResponder(http.MethodDelete, base+"/schedules/museum",
				httpmock.NewStringResponder(http.StatusNoContent, ""))

			Convey("Then the empty response is accepted", func() {
				So(c.DeleteSchedule(ctx, "museum"), ShouldBeNil)
			})
		})

		Convey("When listing logs of one connector", func() {
			httpmock.RegisterResponderWithQuery(http.MethodGet, base+"/logs", "connector=museum&kind=fetch",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, types.LogPage{Total: 1, Page: 1, PageSize: 20}))
			page, err := c.ListLogs(ctx, opclient.LogQuery{Connector: "museum", Kind: "fetch"})

			Convey("Then only the set parameters are sent", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
			})
		})

		Convey("When the server refuses a decision", func() {
			httpmock.RegisterResponder(http.MethodPost, base+"/inbox/i1/decision",
				httpmock.NewJsonResponderOrPanic(http.StatusConflict, types.Error{Code: "conflict", Message: "already decided"}))
			_, err := c.Decide(ctx, "i1", types.DecisionRequest{Outcome: "REJECTED", Reviewer: "ana"})

			Convey("Then the API error is returned", func() {
				var apiErr *opclient.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, http.StatusConflict)
				So(apiErr.Code, ShouldEqual, "conflict")
				So(apiErr.Error(), ShouldEqual, "scout api: conflict: already decided")
			})
		})

		Convey("When the server fails without a JSON body", func() {
			httpmock.RegisterResponder(http.MethodGet, base+"/settings",
				httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))
			_, err := c.Settings(ctx)

			Convey("Then the raw body is kept", func() {
				var apiErr *opclient.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Message, ShouldEqual, "upstream down")
			})
		})

		Convey("When listing the inbox with a limit", func() {
			httpmock.RegisterResponderWithQuery(http.MethodGet, base+"/inbox", "assignee=ana&limit=3",
				httpmock.NewStringResponder(http.StatusOK, `[{"id":"i1","state":"PENDING"}]`))
			items, err := c.Inbox(ctx, "ana", 3)

			Convey("Then the items are decoded", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 1)
				So(items[0].ID, ShouldEqual, "i1")
			})
		})
	})
}
