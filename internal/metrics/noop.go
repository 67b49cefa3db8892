package metrics

import "time"

// NoopMetrics discards everything.
type NoopMetrics struct{}

var _ Recorder = NoopMetrics{}

// Noop returns a Recorder with zero overhead, for when metrics are disabled.
func Noop() Recorder {
	return NoopMetrics{}
}

func (NoopMetrics) RecordLookup(string, bool, time.Duration)             {}
func (NoopMetrics) RecordValidation(string, time.Duration)               {}
func (NoopMetrics) RecordConnectionFailure(string)                       {}
func (NoopMetrics) RecordPoolInit(string, bool)                          {}
func (NoopMetrics) RecordLeak()                                          {}
func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
