// Package metrics records scheduler, review and generation metrics in Prometheus
// and queries aggregates back out of a Prometheus server.
package metrics

import "time"

// Work item outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Recorder receives operational events. Implementations must be safe for concurrent use.
type Recorder interface {
	// ObserveWorkItem records one executed work item.
	ObserveWorkItem(agentID, outcome string, duration time.Duration)
	// SetQueueDepth records the number of queued work items.
	SetQueueDepth(n int)
	// ObserveReview records one reviewer verdict ("approved", "changes_requested").
	ObserveReview(reviewer, verdict string, fallback bool)
	// ObserveMerge records a merge attempt ("merged", "failed", "already_merged", "skipped").
	ObserveMerge(outcome string)
	// ObserveGeneration records one text generation call.
	ObserveGeneration(purpose, provider string, duration time.Duration, tokens int, err error)
	// IncChatCommand counts routed chat commands.
	IncChatCommand(kind string)
}

type nopRecorder struct{}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nopRecorder{} }

func (nopRecorder) ObserveWorkItem(string, string, time.Duration)                {}
func (nopRecorder) SetQueueDepth(int)                                            {}
func (nopRecorder) ObserveReview(string, string, bool)                           {}
func (nopRecorder) ObserveMerge(string)                                          {}
func (nopRecorder) ObserveGeneration(string, string, time.Duration, int, error) {}
func (nopRecorder) IncChatCommand(string)                                        {}
