package workorder

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmcleod/techsync/internal/event"
)

// Service is the subset of Client the list model needs.
type Service interface {
	List(ctx context.Context) ([]WorkOrder, error)
	Delete(ctx context.Context, id int64) error
}

// FocusSource notifies subscribers when the list becomes visible again.
// *event.Focus satisfies it.
type FocusSource interface {
	OnFocus(cb func()) (unsubscribe func())
}

// Snapshot is the list model's state at one point in time.
type Snapshot struct {
	Items   []WorkOrder
	Loading bool
	Err     error
}

// ListModel holds the work-order list shown to the user.
type ListModel struct {
	svc    Service
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	items   []WorkOrder
	loading bool
	err     error

	changes event.Feed[Snapshot]
}

// NewListModel creates an empty model. A nil logger means slog.Default().
func NewListModel(svc Service, logger *slog.Logger) *ListModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListModel{svc: svc, logger: logger}
}

// Snapshot returns a copy of the current state.
func (m *ListModel) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Items returns a copy of the current list.
func (m *ListModel) Items() []WorkOrder {
	return m.Snapshot().Items
}

// Err returns the error from the last failed operation, or nil.
func (m *ListModel) Err() error {
	return m.Snapshot().Err
}

// Loading reports whether a refresh is in flight.
func (m *ListModel) Loading() bool {
	return m.Snapshot().Loading
}

// Subscribe registers fn to receive a snapshot after every change.
func (m *ListModel) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.changes.Subscribe(fn)
}

// Refresh reloads the list. On failure the previous items are kept and the
// error is recorded. Only the most recent refresh updates the list.
func (m *ListModel) Refresh(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.loading = true
	st := m.snapshotLocked()
	m.mu.Unlock()
	m.changes.Publish(st)

	items, err := m.svc.List(ctx)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return err
	}
	m.loading = false
	if err != nil {
		m.err = err
	} else {
		m.items, m.err = items, nil
	}
	st = m.snapshotLocked()
	m.mu.Unlock()
	m.changes.Publish(st)

	if err != nil {
		m.logger.WarnContext(ctx, "refreshing work orders", "error", err)
	}
	return err
}

// Delete removes the work order with id. The item leaves the list only if
// the server confirms; otherwise the list is unchanged and the error is
// recorded and returned.
func (m *ListModel) Delete(ctx context.Context, id int64) error {
	err := m.svc.Delete(ctx, id)

	m.mu.Lock()
	if err != nil {
		m.err = err
	} else {
		m.items = slices.DeleteFunc(m.items, func(w WorkOrder) bool { return w.ID == id })
		m.err = nil
	}
	st := m.snapshotLocked()
	m.mu.Unlock()
	m.changes.Publish(st)
	return err
}

// Bind refreshes the model whenever src reports focus, until the returned
// function is called.
func (m *ListModel) Bind(ctx context.Context, src FocusSource) (unsubscribe func()) {
	return src.OnFocus(func() {
		m.Refresh(ctx)
	})
}

func (m *ListModel) snapshotLocked() Snapshot {
	return Snapshot{
		Items:   slices.Clone(m.items),
		Loading: m.loading,
		Err:     m.err,
	}
}
