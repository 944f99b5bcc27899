// Package auth owns the provider session: the sqlite-backed credential
// container and the QR pairing flow.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// sessionFile is the sqlite database holding device credentials and
// provider state, separate from the application store.
const sessionFile = "session.db"

// Session wraps the provider's credential container.
type Session struct {
	dir       string
	db        *sql.DB
	container *sqlstore.Container
	log       waLog.Logger
}

// Open opens (or creates) the session database under dir and migrates the
// provider schema.
func Open(ctx context.Context, dir string, log waLog.Logger) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}

	path := filepath.Join(dir, sessionFile)
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", log.Sub("SessionDB"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade session schema: %w", err)
	}

	return &Session{
		dir:       dir,
		db:        db,
		container: container,
		log:       log.Sub("Session"),
	}, nil
}

// Device returns the stored device, or a fresh one when none exists yet.
// A fresh device has no ID and triggers the QR pairing flow on connect.
func (s *Session) Device(ctx context.Context) (*store.Device, error) {
	devices, err := s.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	s.log.Infof("No stored device, pairing required")
	return s.container.NewDevice(), nil
}

// Wipe deletes the stored credentials so the next boot starts from a clean
// pairing. Called after the provider reports the session logged out.
func (s *Session) Wipe(ctx context.Context, device *store.Device) error {
	if device == nil || device.ID == nil {
		return nil
	}
	if err := s.container.DeleteDevice(ctx, device); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	s.log.Warnf("Credentials for %s wiped", device.ID)
	return nil
}

// Close closes the session database.
func (s *Session) Close() error {
	return s.db.Close()
}
