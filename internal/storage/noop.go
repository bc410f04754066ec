package storage

import "context"

type noopStore struct{}

// Noop returns a store whose operations all succeed without doing anything.
// List returns no records and Count reports zero.
func Noop() Store { return noopStore{} }

func (noopStore) Insert(context.Context, Reminder) error   { return nil }
func (noopStore) Update(context.Context, int, Patch) error { return nil }
func (noopStore) Delete(context.Context, int) error        { return nil }
func (noopStore) Count(context.Context, int) (int, error)  { return 0, nil }
func (noopStore) List(context.Context) ([]Reminder, error) { return nil, nil }
func (noopStore) Close() error                             { return nil }
