package persistence

import "context"

// EventRepository stores events and replaces their slot collections wholesale.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	// UpdateEvent writes event only if the stored version still equals
	// expectedVersion, and bumps the stored version to event.Version.
	UpdateEvent(ctx context.Context, event Event, expectedVersion int64) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// EventFilter narrows ListEvents queries.
type EventFilter struct {
	CreatedBy  string
	Discipline string
	State      string
}

// UserRepository stores directory users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
}
