package audit

import (
	"context"
	"errors"
)

type fanout []Store

// Fanout appends each event to every store. All stores are attempted; the
// returned error joins the individual failures.
func Fanout(stores ...Store) Store {
	return fanout(stores)
}

func (f fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListByEmail reads from the first store that supports listing.
func (f fanout) ListByEmail(ctx context.Context, email string) ([]Event, error) {
	for _, s := range f {
		if r, ok := s.(Reader); ok {
			return r.ListByEmail(ctx, email)
		}
	}
	return nil, ErrNotReadable
}

// ErrNotReadable is returned when no configured store can list events.
var ErrNotReadable = errors.New("audit store does not support listing")
