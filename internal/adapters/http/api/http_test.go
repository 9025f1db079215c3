package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/immodesk/leadengine/internal/adapters/http/api"
	"github.com/immodesk/leadengine/internal/adapters/repository"
	service "github.com/immodesk/leadengine/internal/app"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func newTestServer(t *testing.T, opts ...service.Option) (*httptest.Server, *repository.MemStore) {
	t.Helper()

	store := repository.NewMemStore()
	svc := service.New(append([]service.Option{service.WithStore(store)}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux, svc)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a running API server", t, func() {
		server, _ := newTestServer(t)

		Convey("When probing the health endpoint", func() {
			resp, err := http.Get(server.URL + "/healthz")
			So(err, ShouldBeNil)

			Convey("Then it reports ok", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body map[string]string
				decodeBody(t, resp, &body)
				So(body["status"], ShouldEqual, "ok")
			})
		})

		Convey("When fetching stats", func() {
			resp, err := http.Get(server.URL + "/stats")
			So(err, ShouldBeNil)

			Convey("Then the service snapshot comes back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body map[string]any
				decodeBody(t, resp, &body)
				So(body["started"], ShouldEqual, true)
			})
		})

		Convey("When scraping metrics", func() {
			resp, err := http.Get(server.URL + "/metrics")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the exposition endpoint answers", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestLeadRoutes(t *testing.T) {
	Convey("Given a server with one seeded lead", t, func() {
		server, store := newTestServer(t)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID: "lead-1", TenantID: "t1",
			Email: "max@example.com", Phone: "+49 170 1234567",
			FirstName: "Max", LastName: "Mustermann",
			Status: model.StatusNew, Source: model.SourceWebsite,
		}), ShouldBeNil)

		Convey("When scoring the lead", func() {
			resp := postJSON(t, server.URL+"/leads/lead-1/score", nil)

			Convey("Then the breakdown is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					TotalScore int `json:"total_score"`
					Factors    []struct {
						Factor string `json:"factor"`
					} `json:"factors"`
				}
				decodeBody(t, resp, &body)
				So(body.TotalScore, ShouldBeGreaterThan, 0)
				So(body.Factors, ShouldNotBeEmpty)
			})
		})

		Convey("When scoring an unknown lead", func() {
			resp := postJSON(t, server.URL+"/leads/ghost/score", nil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("When enriching without a tenant", func() {
			resp := postJSON(t, server.URL+"/leads/lead-1/enrich", nil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When enriching with the tenant", func() {
			resp := postJSON(t, server.URL+"/leads/lead-1/enrich?tenant_id=t1", nil)

			Convey("Then the completeness report comes back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					CompletenessScore int `json:"completeness_score"`
				}
				decodeBody(t, resp, &body)
				So(body.CompletenessScore, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When predicting conversion", func() {
			resp, err := http.Get(server.URL + "/leads/lead-1/conversion?tenant_id=t1")
			So(err, ShouldBeNil)

			Convey("Then a bounded probability is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					Probability int `json:"probability"`
				}
				decodeBody(t, resp, &body)
				So(body.Probability, ShouldBeBetweenOrEqual, 1, 99)
			})
		})
	})
}

func TestTenantRoutes(t *testing.T) {
	Convey("Given a server with tenant data", t, func() {
		server, store := newTestServer(t)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID: "lead-1", TenantID: "t1", Email: "a@example.com",
			Status: model.StatusNew, Source: model.SourceWebsite,
		}), ShouldBeNil)
		for i := 0; i < 5; i++ {
			So(store.CreateProperty(ctx, model.Property{
				ID: "p-" + string(rune('a'+i)), TenantID: "t1",
				City: "Berlin", LivingArea: 100, SalePrice: 500000,
			}), ShouldBeNil)
		}

		Convey("When rescoring the tenant", func() {
			resp := postJSON(t, server.URL+"/tenants/t1/rescore", nil)

			Convey("Then the processed count is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					Rescored int `json:"rescored"`
				}
				decodeBody(t, resp, &body)
				So(body.Rescored, ShouldEqual, 1)
			})
		})

		Convey("When asking for the best contact time", func() {
			resp, err := http.Get(server.URL + "/tenants/t1/contact-time")
			So(err, ShouldBeNil)

			Convey("Then defaults apply for a quiet tenant", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					BestHour int    `json:"best_hour"`
					BestDay  string `json:"best_day"`
				}
				decodeBody(t, resp, &body)
				So(body.BestHour, ShouldEqual, 10)
				So(body.BestDay, ShouldEqual, "tuesday")
			})
		})

		Convey("When estimating a price from comparables", func() {
			resp := postJSON(t, server.URL+"/tenants/t1/price-estimate", map[string]any{
				"city":        "Berlin",
				"living_area": 100,
			})

			Convey("Then the estimate reflects the comparables", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					EstimatedPrice float64 `json:"estimated_price"`
					Comparables    int     `json:"comparables"`
				}
				decodeBody(t, resp, &body)
				So(body.EstimatedPrice, ShouldEqual, 500000)
				So(body.Comparables, ShouldEqual, 5)
			})
		})
	})
}

func TestFollowUpRoute(t *testing.T) {
	Convey("Given a running API server", t, func() {
		server, store := newTestServer(t)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID: "lead-1", TenantID: "t1", Email: "f@example.com",
			Status: model.StatusNew, AssignedUserID: "user-1",
			CreatedAt: time.Now().AddDate(0, 0, -3),
		}), ShouldBeNil)

		Convey("When the scheduler webhook fires for the lead", func() {
			resp := postJSON(t, server.URL+"/followups/execute", map[string]any{
				"lead_id":   "lead-1",
				"tenant_id": "t1",
				"step":      0,
			})

			Convey("Then the step result is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					ReminderLogged bool `json:"reminder_logged"`
					NextScheduled  bool `json:"next_scheduled"`
				}
				decodeBody(t, resp, &body)
				So(body.ReminderLogged, ShouldBeTrue)
				So(body.NextScheduled, ShouldBeTrue)
			})
		})

		Convey("When the webhook fires for a missing lead", func() {
			resp := postJSON(t, server.URL+"/followups/execute", map[string]any{
				"lead_id":   "ghost",
				"tenant_id": "t1",
				"step":      0,
			})

			Convey("Then the skip is reported with a 200", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body struct {
					Skipped    bool   `json:"skipped"`
					SkipReason string `json:"skip_reason"`
				}
				decodeBody(t, resp, &body)
				So(body.Skipped, ShouldBeTrue)
				So(body.SkipReason, ShouldEqual, "lead_not_found")
			})
		})

		Convey("When the body is incomplete", func() {
			resp := postJSON(t, server.URL+"/followups/execute", map[string]any{"step": 0})
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestExperimentRoutes(t *testing.T) {
	Convey("Given a running API server", t, func() {
		server, _ := newTestServer(t)

		createBody := map[string]any{
			"name": "subject-line",
			"type": "email",
			"variants": []map[string]any{
				{"name": "A", "weight": 50},
				{"name": "B", "weight": 50},
			},
		}

		Convey("When creating an experiment", func() {
			resp := postJSON(t, server.URL+"/experiments", createBody)

			var created struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			}
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			decodeBody(t, resp, &created)
			So(created.Status, ShouldEqual, "draft")

			Convey("Then it shows up in the listing", func() {
				listResp, err := http.Get(server.URL + "/experiments")
				So(err, ShouldBeNil)
				So(listResp.StatusCode, ShouldEqual, http.StatusOK)
				var list []map[string]any
				decodeBody(t, listResp, &list)
				So(list, ShouldHaveLength, 1)
			})

			Convey("And the full lifecycle works over HTTP", func() {
				startResp := postJSON(t, server.URL+"/experiments/"+created.ID+"/start", nil)
				_ = startResp.Body.Close()
				So(startResp.StatusCode, ShouldEqual, http.StatusOK)

				assignResp := postJSON(t, server.URL+"/experiments/"+created.ID+"/assign",
					map[string]string{"identifier": "lead-1"})
				var assigned struct {
					Assigned bool `json:"assigned"`
					Variant  *struct {
						ID string `json:"id"`
					} `json:"variant"`
				}
				So(assignResp.StatusCode, ShouldEqual, http.StatusOK)
				decodeBody(t, assignResp, &assigned)
				So(assigned.Assigned, ShouldBeTrue)
				So(assigned.Variant, ShouldNotBeNil)

				convertResp := postJSON(t, server.URL+"/experiments/"+created.ID+"/convert",
					map[string]string{"identifier": "lead-1"})
				var converted struct {
					Tracked bool `json:"tracked"`
				}
				So(convertResp.StatusCode, ShouldEqual, http.StatusOK)
				decodeBody(t, convertResp, &converted)
				So(converted.Tracked, ShouldBeTrue)

				resultsResp, err := http.Get(server.URL + "/experiments/" + created.ID + "/results")
				So(err, ShouldBeNil)
				So(resultsResp.StatusCode, ShouldEqual, http.StatusOK)
				var results struct {
					Variants []struct {
						Impressions int `json:"impressions"`
					} `json:"variants"`
				}
				decodeBody(t, resultsResp, &results)
				So(results.Variants, ShouldHaveLength, 2)

				endResp := postJSON(t, server.URL+"/experiments/"+created.ID+"/end", nil)
				_ = endResp.Body.Close()
				So(endResp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When creating with bad weights", func() {
			resp := postJSON(t, server.URL+"/experiments", map[string]any{
				"name": "broken",
				"type": "email",
				"variants": []map[string]any{
					{"name": "A", "weight": 50},
					{"name": "B", "weight": 30},
				},
			})
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When starting an unknown experiment", func() {
			resp := postJSON(t, server.URL+"/experiments/ghost/start", nil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRateLimiting(t *testing.T) {
	Convey("Given a server limited to 2 mutating calls per minute", t, func() {
		server, store := newTestServer(t, service.WithRateLimit(2, time.Minute))
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID: "lead-1", TenantID: "t1", Email: "r@example.com",
			Status: model.StatusNew,
		}), ShouldBeNil)

		Convey("When a client hammers a mutating route", func() {
			var last *http.Response
			for i := 0; i < 3; i++ {
				if last != nil {
					_ = last.Body.Close()
				}
				last = postJSON(t, server.URL+"/leads/lead-1/score", nil)
			}
			defer func() { _ = last.Body.Close() }()

			Convey("Then the third request is rejected with a retry hint", func() {
				So(last.StatusCode, ShouldEqual, http.StatusTooManyRequests)
				So(last.Header.Get("Retry-After"), ShouldNotBeEmpty)
			})
		})

		Convey("When the same client uses read-only routes", func() {
			for i := 0; i < 5; i++ {
				resp, err := http.Get(server.URL + "/healthz")
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				_ = resp.Body.Close()
			}
		})
	})
}
