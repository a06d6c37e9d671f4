package browser

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager owns the single live session of a run and replaces it wholesale
// after fatal faults.
type Manager struct {
	Open      func(ctx context.Context) (Session, error)
	OnRestart func()

	session  Session
	restarts int
}

// NewManager returns a Manager opening sessions with opts.
func NewManager(opts Options) *Manager {
	return &Manager{
		Open: func(ctx context.Context) (Session, error) { return Open(ctx, opts) },
	}
}

// Session returns the live session, opening one if needed.
func (m *Manager) Session(ctx context.Context) (Session, error) {
	if m.session != nil {
		return m.session, nil
	}
	s, err := m.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	m.session = s
	return s, nil
}

// Restart tears down the current session and opens a fresh one.
func (m *Manager) Restart(ctx context.Context) error {
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			slog.Debug("closing broken session", slog.Any("error", err))
		}
		m.session = nil
	}
	m.restarts++
	if m.OnRestart != nil {
		m.OnRestart()
	}
	_, err := m.Session(ctx)
	return err
}

// Restarts returns how many times the session was recreated.
func (m *Manager) Restarts() int { return m.restarts }

// Close releases the live session, if any.
func (m *Manager) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
