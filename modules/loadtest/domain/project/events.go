package project

type CreatedEvent struct {
	Result *Project
}

type UpdatedEvent struct {
	Result *Project
}

type DeletedEvent struct {
	ID int64
}

// ImportedEvent is published when a project archive is materialized.
type ImportedEvent struct {
	Result *Project
}
