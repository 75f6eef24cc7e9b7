package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/asyncexec/dlq"
	"github.com/xraph/asyncexec/job"
)

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	opts, err := dlqOpts(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	entries, err := a.eng.DLQ().List(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	entry, err := a.eng.DLQ().Get(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	var req ReactivateRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if req.Retries == 0 {
		req.Retries = a.eng.Config().DefaultRetries
	}

	j, out, err := a.eng.DLQ().Replay(r.Context(), jobID, req.Retries)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if out == job.Conflict {
		a.writeError(w, errConflict)
		return
	}
	a.writeJSON(w, http.StatusOK, j)
}

func (a *API) replayAllDLQ(w http.ResponseWriter, r *http.Request) {
	opts, err := dlqOpts(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	opts.Limit, opts.Offset = 0, 0

	var req ReactivateRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if req.Retries == 0 {
		req.Retries = a.eng.Config().DefaultRetries
	}

	n, err := a.eng.DLQ().ReplayAll(r.Context(), opts, req.Retries)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, AffectedResponse{Affected: n})
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	olderThan := 30 * 24 * time.Hour
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			a.writeError(w, badRequest("invalid older_than: "+raw))
			return
		}
		olderThan = d
	}

	n, err := a.eng.DLQ().Purge(r.Context(), time.Now().UTC().Add(-olderThan))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, PurgeDLQResponse{Purged: n})
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	opts, err := dlqOpts(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	n, err := a.eng.DLQ().Count(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, DLQCountResponse{Count: n})
}

func dlqOpts(r *http.Request) (dlq.ListOpts, error) {
	v := r.URL.Query()
	opts := dlq.ListOpts{
		TenantID:          v.Get("tenant_id"),
		ProcessInstanceID: v.Get("process_instance_id"),
		HandlerType:       v.Get("handler_type"),
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		return opts, err
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return opts, err
	}
	opts.Limit = defaultLimit(limit)
	opts.Offset = offset
	return opts, nil
}

func processInstanceParam(r *http.Request) string {
	return chi.URLParam(r, "processInstanceId")
}
