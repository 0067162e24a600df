// Package settings persists the handful of device settings that must
// survive a server restart, in a small bolt-backed database.
package settings

import (
	"github.com/asdine/storm/v3"
)

const axisBucket = "axes"

// Store is a persistent key-value store for device settings.  It is
// concurrent safe; the underlying bolt database serializes access.
type Store struct {
	db *storm.DB
}

// Open opens (or creates) the settings database at path
func Open(path string) (*Store, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database file
func (s *Store) Close() error {
	return s.db.Close()
}

// AxisInverted returns the persisted inversion flag for an axis.  An axis
// that was never written defaults to not inverted.
func (s *Store) AxisInverted(axis string) (bool, error) {
	var inverted bool
	err := s.db.Get(axisBucket, axis+".inverted", &inverted)
	if err == storm.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inverted, nil
}

// SetAxisInverted persists the inversion flag for an axis
func (s *Store) SetAxisInverted(axis string, inverted bool) error {
	return s.db.Set(axisBucket, axis+".inverted", inverted)
}
