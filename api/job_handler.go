package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xraph/asyncexec/job"
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q, err := jobQuery(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	jobs, err := a.eng.Store().ListJobs(r.Context(), q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	a.writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := a.loadJob(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, j)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	a.mutateJob(w, r, func(ctx context.Context, j *job.Job) (job.Outcome, error) {
		return a.eng.Manager().DeleteJob(ctx, j)
	}, http.StatusNoContent)
}

func (a *API) reactivateJob(w http.ResponseWriter, r *http.Request) {
	var req ReactivateRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if req.Retries == 0 {
		req.Retries = a.eng.Config().DefaultRetries
	}

	a.mutateJob(w, r, func(ctx context.Context, j *job.Job) (job.Outcome, error) {
		if j.State == job.StateSuspended {
			return a.eng.Manager().ActivateSuspendedJob(ctx, j)
		}
		return a.eng.Manager().MoveDeadLetterJobToExecutableJob(ctx, j, req.Retries)
	}, http.StatusOK)
}

func (a *API) suspendJob(w http.ResponseWriter, r *http.Request) {
	a.mutateJob(w, r, func(ctx context.Context, j *job.Job) (job.Outcome, error) {
		if j.State != job.StateTimer && j.State != job.StateExecutable {
			return job.Conflict, badRequest("only timer and executable jobs can be suspended, job is " + string(j.State))
		}
		return a.eng.Manager().MoveJobToSuspendedJob(ctx, j)
	}, http.StatusOK)
}

func (a *API) suspendInstance(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.Manager().SuspendProcessInstanceJobs(r.Context(), processInstanceParam(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, AffectedResponse{Affected: n})
}

func (a *API) activateInstance(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.Manager().ActivateProcessInstanceJobs(r.Context(), processInstanceParam(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, AffectedResponse{Affected: n})
}

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.countByState(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, counts)
}

func (a *API) countByState(ctx context.Context) (JobCountsResponse, error) {
	var resp JobCountsResponse
	for _, state := range job.States {
		n, err := a.eng.Store().CountJobs(ctx, job.Query{State: state})
		if err != nil {
			return resp, err
		}
		switch state {
		case job.StateTimer:
			resp.Timer = n
		case job.StateExecutable:
			resp.Executable = n
		case job.StateSuspended:
			resp.Suspended = n
		case job.StateDeadLetter:
			resp.DeadLetter = n
		}
	}
	return resp, nil
}

// mutateJob loads the job named in the path, applies op and reports a
// lost version race as 409.
func (a *API) mutateJob(w http.ResponseWriter, r *http.Request, op func(context.Context, *job.Job) (job.Outcome, error), status int) {
	j, err := a.loadJob(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	out, err := op(r.Context(), j)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if out == job.Conflict {
		a.writeError(w, errConflict)
		return
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	a.writeJSON(w, status, j)
}

func (a *API) loadJob(r *http.Request) (*job.Job, error) {
	jobID, err := jobIDParam(r)
	if err != nil {
		return nil, err
	}
	return a.eng.Store().GetJob(r.Context(), jobID)
}

func jobQuery(r *http.Request) (job.Query, error) {
	v := r.URL.Query()
	q := job.Query{
		ProcessInstanceID: v.Get("process_instance_id"),
		ExecutionID:       v.Get("execution_id"),
		TenantID:          v.Get("tenant_id"),
		HandlerType:       v.Get("handler_type"),
	}
	if s := v.Get("state"); s != "" {
		q.State = job.State(s)
		if !q.State.Valid() {
			return q, badRequest("unknown state: " + s)
		}
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		return q, err
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return q, err
	}
	q.Limit = defaultLimit(limit)
	q.Offset = offset
	return q, nil
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
