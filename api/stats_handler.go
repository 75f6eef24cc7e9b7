package api

import (
	"net/http"
)

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.countByState(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}

	ps := a.eng.Pool().Stats()
	a.writeJSON(w, http.StatusOK, StatsResponse{
		Node: a.eng.NodeName(),
		Jobs: counts,
		Pool: PoolStats{
			Running:       ps.Running,
			QueueDepth:    ps.QueueDepth,
			QueueCapacity: ps.QueueCapacity,
			ActiveWorkers: ps.ActiveWorkers,
			Acquired:      ps.Acquired,
			Offered:       ps.Offered,
			Executed:      ps.Executed,
			Failed:        ps.Failed,
			Rejected:      ps.Rejected,
		},
		Handlers: a.eng.Handlers().Types(),
	})
}
