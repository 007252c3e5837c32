package store

import (
	"fmt"
	"time"
)

// SaveTokenReference records that a bearer token for rootID is held in the
// keyring under referenceName. The token value itself never passes through
// this package; see internal/remote.TokenStore for the keyring side.
func (s *Store) SaveTokenReference(referenceName, rootID string) error {
	_, err := s.conn.Exec(`
		INSERT INTO token (reference_name, root_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(reference_name) DO UPDATE SET root_id = excluded.root_id
	`, referenceName, rootID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save token reference: %w", err)
	}
	return nil
}

// DeleteTokenReference removes the reference row (not the keyring secret).
func (s *Store) DeleteTokenReference(referenceName string) error {
	_, err := s.conn.Exec(`DELETE FROM token WHERE reference_name = ?`, referenceName)
	if err != nil {
		return fmt.Errorf("delete token reference: %w", err)
	}
	return nil
}
