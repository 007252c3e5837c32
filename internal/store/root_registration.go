package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RootKind distinguishes a personal root from a team-owned one, replacing
// the string-length id heuristic with an explicit field set at registration.
type RootKind string

const (
	RootKindPersonal RootKind = "personal"
	RootKindTeam     RootKind = "team"
)

// RootRegistration is the persisted record of a registered sync root.
type RootRegistration struct {
	RootID         string
	DisplayName    string
	LocalPath      string
	RemoteHostID   string
	NamespaceCLSID string
	RootKind       RootKind
	RegisteredAt   time.Time
}

// SaveRootRegistration inserts or replaces a root's registration row.
func (s *Store) SaveRootRegistration(r RootRegistration) error {
	_, err := s.conn.Exec(`
		INSERT INTO root_registration (root_id, display_name, local_path, remote_host_id, namespace_clsid, root_kind, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root_id) DO UPDATE SET
			display_name = excluded.display_name,
			local_path = excluded.local_path,
			remote_host_id = excluded.remote_host_id,
			namespace_clsid = excluded.namespace_clsid,
			root_kind = excluded.root_kind
	`, r.RootID, r.DisplayName, r.LocalPath, r.RemoteHostID, r.NamespaceCLSID, string(r.RootKind), r.RegisteredAt.Unix())
	if err != nil {
		return fmt.Errorf("save root registration: %w", err)
	}
	return nil
}

// GetRootRegistration looks up a root by id. Returns nil, nil if not found.
func (s *Store) GetRootRegistration(rootID string) (*RootRegistration, error) {
	var r RootRegistration
	var kind string
	var registeredAt int64
	err := s.conn.QueryRow(`
		SELECT root_id, display_name, local_path, remote_host_id, namespace_clsid, root_kind, registered_at
		FROM root_registration WHERE root_id = ?
	`, rootID).Scan(&r.RootID, &r.DisplayName, &r.LocalPath, &r.RemoteHostID, &r.NamespaceCLSID, &kind, &registeredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get root registration: %w", err)
	}
	r.RootKind = RootKind(kind)
	r.RegisteredAt = time.Unix(registeredAt, 0)
	return &r, nil
}

// DeleteRootRegistration removes a root's registration row.
func (s *Store) DeleteRootRegistration(rootID string) error {
	_, err := s.conn.Exec(`DELETE FROM root_registration WHERE root_id = ?`, rootID)
	if err != nil {
		return fmt.Errorf("delete root registration: %w", err)
	}
	return nil
}
