package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/lims-calendar/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Events   application.EventRepository
	Notifier application.Notifier
	Logger   *slog.Logger
}

// NewEventService constructs an EventService wired to the factory clock and
// id generator.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	return application.NewEventServiceWithLogger(deps.Events, deps.Notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), deps.Logger)
}

// IdentityServiceDeps captures dependencies for constructing an identity service.
type IdentityServiceDeps struct {
	Users application.UserStore
	// Secret is returned by the secret generator. Defaults to "secret".
	Secret string
	Logger *slog.Logger
}

// FastArgon2idParams keeps key hashing cheap in tests.
var FastArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// NewIdentityService constructs an IdentityService with cheap hashing and a
// fixed secret so issued tokens are predictable.
func (f *ServiceFactory) NewIdentityService(deps IdentityServiceDeps) *application.IdentityService {
	secret := deps.Secret
	if secret == "" {
		secret = "secret"
	}
	return application.NewIdentityServiceWithLogger(deps.Users, func() string { return secret }, f.Clock.NowFunc(), FastArgon2idParams, deps.Logger)
}
