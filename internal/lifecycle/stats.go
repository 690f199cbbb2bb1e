package lifecycle

import "sync/atomic"

type counters struct {
	created   atomic.Int64
	triggered atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	expired   atomic.Int64
	rejected  atomic.Int64
	busy      atomic.Int64
	discarded atomic.Int64
	inFlight  atomic.Int64
}

// Stats is a snapshot of lifecycle counters since process start.
type Stats struct {
	Created   int64 `json:"created"`
	Triggered int64 `json:"triggered"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Expired   int64 `json:"expired"`
	Rejected  int64 `json:"rejected"`
	Busy      int64 `json:"busy"`
	Discarded int64 `json:"discarded"`
	InFlight  int64 `json:"inFlight"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		Created:   c.created.Load(),
		Triggered: c.triggered.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Expired:   c.expired.Load(),
		Rejected:  c.rejected.Load(),
		Busy:      c.busy.Load(),
		Discarded: c.discarded.Load(),
		InFlight:  c.inFlight.Load(),
	}
}
