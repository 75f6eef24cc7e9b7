package api

// ReactivateRequest is the optional body of reactivate and replay calls.
// Zero retries means the engine's configured default.
type ReactivateRequest struct {
	Retries int `json:"retries,omitempty"`
}

// JobCountsResponse holds job counts per state.
type JobCountsResponse struct {
	Timer      int64 `json:"timer"`
	Executable int64 `json:"executable"`
	Suspended  int64 `json:"suspended"`
	DeadLetter int64 `json:"deadletter"`
}

// AffectedResponse reports how many jobs a bulk operation changed.
type AffectedResponse struct {
	Affected int `json:"affected"`
}

// PurgeDLQResponse is the response of a dead-letter purge.
type PurgeDLQResponse struct {
	Purged int `json:"purged"`
}

// DLQCountResponse is the response of a dead-letter count.
type DLQCountResponse struct {
	Count int64 `json:"count"`
}

// PoolStats mirrors worker.Stats for JSON output.
type PoolStats struct {
	Running       bool  `json:"running"`
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	ActiveWorkers int64 `json:"active_workers"`
	Acquired      int64 `json:"acquired"`
	Offered       int64 `json:"offered"`
	Executed      int64 `json:"executed"`
	Failed        int64 `json:"failed"`
	Rejected      int64 `json:"rejected"`
}

// StatsResponse is the node overview.
type StatsResponse struct {
	Node     string            `json:"node"`
	Jobs     JobCountsResponse `json:"jobs"`
	Pool     PoolStats         `json:"pool"`
	Handlers []string          `json:"handlers"`
}
