package domain

import "context"

// Sink receives successful in-memory mutations for mirroring into external
// systems (warehouse rows, event streams). The protocol layer never depends
// on a sink succeeding: failures are logged by the caller and the in-memory
// state stands.
type Sink interface {
	// UserRegistered is invoked after a user was inserted into the live store.
	UserRegistered(ctx context.Context, user User) error

	// WeatherProvisioned is invoked after a validated batch was appended to
	// the live store.
	WeatherProvisioned(ctx context.Context, records []WeatherRecord) error
}

// NoopSink discards all mutations. Used when no mirror is configured.
type NoopSink struct{}

func (NoopSink) UserRegistered(context.Context, User) error { return nil }

func (NoopSink) WeatherProvisioned(context.Context, []WeatherRecord) error { return nil }

// FanoutSink forwards each mutation to every configured sink. The first
// error is returned after all sinks have been attempted, so one failing
// mirror does not starve the others.
type FanoutSink []Sink

func (f FanoutSink) UserRegistered(ctx context.Context, user User) error {
	var first error
	for _, s := range f {
		if err := s.UserRegistered(ctx, user); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f FanoutSink) WeatherProvisioned(ctx context.Context, records []WeatherRecord) error {
	var first error
	for _, s := range f {
		if err := s.WeatherProvisioned(ctx, records); err != nil && first == nil {
			first = err
		}
	}
	return first
}
