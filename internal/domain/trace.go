package domain

import "time"

// DecisionTrace is one evaluated position per tick, appended to the
// trace store when configured. Best effort: trace failures never affect
// the pipeline verdict.
type DecisionTrace struct {
	TraceID  string // uuid
	Mint     string
	Ts       time.Time
	Action   Action
	Reason   string
	GrossPnl float64
	NetPnl   float64
	Steps    []StepTrace
	Tags     []string
}
