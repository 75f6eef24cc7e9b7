package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/api"
	"github.com/xraph/asyncexec/engine"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/store/memory"
	"github.com/xraph/asyncexec/store/storetest"
)

type fixture struct {
	srv   *httptest.Server
	store *memory.Store
}

func newFixture(t *testing.T, jobs ...*job.Job) *fixture {
	t.Helper()
	s := memory.New()
	for _, j := range jobs {
		if err := s.InsertJob(context.Background(), j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	cfg := asyncexec.DefaultConfig()
	cfg.NodeName = "node-a"
	eng, err := engine.New(s, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv := httptest.NewServer(api.New(eng, nil).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: s}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) state(t *testing.T, j *job.Job) job.State {
	t.Helper()
	got, err := f.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return got.State
}

func TestListAndGetJobs(t *testing.T) {
	due := time.Now().Add(time.Hour)
	timer := storetest.NewJob(job.StateTimer, &due)
	exec := storetest.NewJob(job.StateExecutable, nil)
	f := newFixture(t, timer, exec)

	var all []*job.Job
	if code := f.do(t, http.MethodGet, "/v1/jobs", "", &all); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(all) != 2 {
		t.Errorf("listed %d jobs, want 2", len(all))
	}

	var timers []*job.Job
	f.do(t, http.MethodGet, "/v1/jobs?state=timer", "", &timers)
	if len(timers) != 1 || timers[0].ID.String() != timer.ID.String() {
		t.Errorf("state filter returned %v", timers)
	}

	var got job.Job
	if code := f.do(t, http.MethodGet, "/v1/jobs/"+exec.ID.String(), "", &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if got.State != job.StateExecutable {
		t.Errorf("state = %s", got.State)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown state", "/v1/jobs?state=bogus", http.StatusBadRequest},
		{"bad limit", "/v1/jobs?limit=x", http.StatusBadRequest},
		{"bad id", "/v1/jobs/nope", http.StatusBadRequest},
		{"missing", "/v1/jobs/" + id.NewJobID().String(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := f.do(t, http.MethodGet, tt.path, "", nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestReactivateAndDelete(t *testing.T) {
	dead := storetest.NewJob(job.StateDeadLetter, nil)
	dead.Retries = 0
	exec := storetest.NewJob(job.StateExecutable, nil)
	f := newFixture(t, dead, exec)

	var got job.Job
	code := f.do(t, http.MethodPost, "/v1/jobs/"+dead.ID.String()+"/reactivate", `{"retries":5}`, &got)
	if code != http.StatusOK {
		t.Fatalf("reactivate status = %d", code)
	}
	if got.State != job.StateExecutable || got.Retries != 5 {
		t.Errorf("reactivated job: state=%s retries=%d", got.State, got.Retries)
	}

	if code := f.do(t, http.MethodPost, "/v1/jobs/"+exec.ID.String()+"/reactivate", "", nil); code != http.StatusConflict {
		t.Errorf("reactivate executable status = %d, want 409", code)
	}

	if code := f.do(t, http.MethodDelete, "/v1/jobs/"+exec.ID.String(), "", nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if _, err := f.store.GetJob(context.Background(), exec.ID); err == nil {
		t.Error("job still present after delete")
	}
}

func TestSuspendAndActivateInstance(t *testing.T) {
	due := time.Now().Add(time.Hour)
	timer := storetest.NewJob(job.StateTimer, &due)
	exec := storetest.NewJob(job.StateExecutable, nil)
	other := storetest.NewJob(job.StateExecutable, nil)
	other.ProcessInstanceID = "proc-2"
	f := newFixture(t, timer, exec, other)

	var res api.AffectedResponse
	if code := f.do(t, http.MethodPost, "/v1/process-instances/proc-1/suspend", "", &res); code != http.StatusOK {
		t.Fatalf("suspend status = %d", code)
	}
	if res.Affected != 2 {
		t.Errorf("suspended %d, want 2", res.Affected)
	}
	if f.state(t, other) != job.StateExecutable {
		t.Error("other instance was suspended")
	}

	var counts api.JobCountsResponse
	f.do(t, http.MethodGet, "/v1/jobs/counts", "", &counts)
	if counts.Suspended != 2 || counts.Executable != 1 {
		t.Errorf("counts = %+v", counts)
	}

	f.do(t, http.MethodPost, "/v1/process-instances/proc-1/activate", "", &res)
	if res.Affected != 2 {
		t.Errorf("activated %d, want 2", res.Affected)
	}
	if f.state(t, timer) != job.StateTimer || f.state(t, exec) != job.StateExecutable {
		t.Error("jobs not restored to their previous states")
	}

	var suspended job.Job
	if code := f.do(t, http.MethodPost, "/v1/jobs/"+exec.ID.String()+"/suspend", "", &suspended); code != http.StatusOK {
		t.Fatalf("suspend job status = %d", code)
	}
	if suspended.SuspendedFrom != job.StateExecutable {
		t.Errorf("suspended from = %s", suspended.SuspendedFrom)
	}
	if code := f.do(t, http.MethodPost, "/v1/jobs/"+exec.ID.String()+"/suspend", "", nil); code != http.StatusBadRequest {
		t.Errorf("double suspend status = %d, want 400", code)
	}
}

func TestDeadLetterQueue(t *testing.T) {
	first := storetest.NewJob(job.StateDeadLetter, nil)
	first.SetException("timeout", "")
	second := storetest.NewJob(job.StateDeadLetter, nil)
	second.TenantID = "globex"
	f := newFixture(t, first, second)

	var entries []map[string]any
	f.do(t, http.MethodGet, "/v1/dlq", "", &entries)
	if len(entries) != 2 {
		t.Fatalf("dlq entries = %d, want 2", len(entries))
	}

	var count api.DLQCountResponse
	f.do(t, http.MethodGet, "/v1/dlq/count?tenant_id=globex", "", &count)
	if count.Count != 1 {
		t.Errorf("tenant count = %d, want 1", count.Count)
	}

	var entry map[string]any
	if code := f.do(t, http.MethodGet, "/v1/dlq/"+first.ID.String(), "", &entry); code != http.StatusOK {
		t.Fatalf("get entry status = %d", code)
	}
	if entry["error"] != "timeout" {
		t.Errorf("entry error = %v", entry["error"])
	}

	if code := f.do(t, http.MethodPost, "/v1/dlq/"+first.ID.String()+"/replay", "", nil); code != http.StatusOK {
		t.Fatalf("replay status = %d", code)
	}
	if f.state(t, first) != job.StateExecutable {
		t.Error("replayed job not executable")
	}

	var purged api.PurgeDLQResponse
	if code := f.do(t, http.MethodPost, "/v1/dlq/purge?older_than=0s", "", &purged); code != http.StatusOK {
		t.Fatalf("purge status = %d", code)
	}
	if purged.Purged != 1 {
		t.Errorf("purged %d, want 1", purged.Purged)
	}
	if code := f.do(t, http.MethodPost, "/v1/dlq/purge?older_than=soon", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad purge status = %d, want 400", code)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, storetest.NewJob(job.StateExecutable, nil))

	var stats api.StatsResponse
	if code := f.do(t, http.MethodGet, "/v1/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	if stats.Node != "node-a" {
		t.Errorf("node = %q", stats.Node)
	}
	if stats.Jobs.Executable != 1 {
		t.Errorf("executable = %d", stats.Jobs.Executable)
	}
	if stats.Pool.Running {
		t.Error("pool reported running before Start")
	}
}
