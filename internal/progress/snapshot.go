package progress

import "time"

// Snapshot is one sample of pipeline progress.
type Snapshot struct {
	RunID   string    `json:"run_id"`
	Catalog string    `json:"catalog"`
	Done    int64     `json:"done"`
	Total   int64     `json:"total"`
	Final   bool      `json:"final"`
	At      time.Time `json:"at"`
}

// Percent reports completion in the range [0, 100]. An empty run counts as
// complete.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	p := float64(s.Done) * 100 / float64(s.Total)
	if p > 100 {
		return 100
	}
	return p
}
