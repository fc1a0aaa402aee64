package run

// StartedEvent is published once the run row exists and workers are about
// to spin up.
type StartedEvent struct {
	Result *Run
}

// FinishedEvent is published after the terminal status is persisted. It
// fires for every terminal state, including Cancelled, which the metric
// stream does not announce.
type FinishedEvent struct {
	Token  string
	Status Status
}

type DeletedEvent struct {
	ID int64
}
