package endpoint

type CreatedEvent struct {
	Result *Endpoint
}

type UpdatedEvent struct {
	Result *Endpoint
}

type DeletedEvent struct {
	ID        int64
	ProjectID int64
}
