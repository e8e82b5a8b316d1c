package batch

import "filedownloader/internal/download"

// Status is the aggregate state of a finished batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Request is one item of a batch. Directory must already be resolved.
type Request struct {
	URL       string
	Filename  string
	Directory string
}

// Outcome is produced exactly once per request. Index is the position of the
// request in the input, starting at 0.
type Outcome struct {
	Index    int
	URL      string
	Filename string
	Result   *download.Result
	Err      error
}

// OK reports whether the request was stored successfully.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// Result holds outcomes in input order.
type Result struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Total     int
}

// Status derives the aggregate status from the counts.
func (r *Result) Status() Status {
	switch {
	case r.Failed == 0:
		return StatusSuccess
	case r.Failed < r.Total:
		return StatusPartial
	default:
		return StatusFailed
	}
}
