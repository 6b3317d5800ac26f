// Package sessionstore implements the three durable stores that sit below
// the session manager: the global session index (C4), per-session metadata
// (C5), and the per-session append-only transcript (C6). All writes go
// through internal/atomicfile; callers are responsible for serializing
// concurrent mutations (the session manager's lock, per spec §5).
package sessionstore

import (
	"sort"
	"time"

	"github.com/codewiresh/terminald/internal/atomicfile"
	"github.com/codewiresh/terminald/internal/clockid"
	"github.com/codewiresh/terminald/internal/layout"
	"github.com/codewiresh/terminald/internal/protocol"
)

// IndexDocument is the full contents of sessions/index.json.
type IndexDocument struct {
	ProtocolVersion int                          `json:"protocolVersion"`
	UpdatedAt       string                       `json:"updatedAt"`
	Sessions        map[string]protocol.IndexEntry `json:"sessions"`
}

// IndexStore manages the global session catalog.
type IndexStore struct {
	layout layout.Layout
}

// NewIndexStore creates an IndexStore rooted at the given layout.
func NewIndexStore(l layout.Layout) *IndexStore {
	return &IndexStore{layout: l}
}

// Load returns the persisted index document, or a fresh empty one if the
// file does not exist yet.
func (s *IndexStore) Load() (IndexDocument, error) {
	var doc IndexDocument
	err := atomicfile.Read(s.layout.IndexPath(), &doc)
	if err == nil {
		if doc.Sessions == nil {
			doc.Sessions = make(map[string]protocol.IndexEntry)
		}
		return doc, nil
	}
	if err == atomicfile.ErrNotFound {
		return IndexDocument{
			ProtocolVersion: protocol.ProtocolVersion,
			UpdatedAt:       clockid.NowISO(),
			Sessions:        make(map[string]protocol.IndexEntry),
		}, nil
	}
	return IndexDocument{}, err
}

// Save refreshes UpdatedAt and atomically persists doc.
func (s *IndexStore) Save(doc IndexDocument) error {
	doc.UpdatedAt = clockid.NowISO()
	if doc.ProtocolVersion == 0 {
		doc.ProtocolVersion = protocol.ProtocolVersion
	}
	return atomicfile.Write(s.layout.IndexPath(), doc)
}

// AddSession inserts or replaces the index entry for entry.SessionID.
func (s *IndexStore) AddSession(entry protocol.IndexEntry) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.Sessions[entry.SessionID] = entry
	return s.Save(doc)
}

// UpdateSessionStatus updates the status field of an existing entry. It is
// a no-op if the session is not in the index.
func (s *IndexStore) UpdateSessionStatus(sessionID, status string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	entry, ok := doc.Sessions[sessionID]
	if !ok {
		return nil
	}
	entry.Status = status
	entry.LastActivityAt = clockid.NowISO()
	doc.Sessions[sessionID] = entry
	return s.Save(doc)
}

// UpdateSessionName sets the name field of an existing entry. Returns
// false if the session is not in the index.
func (s *IndexStore) UpdateSessionName(sessionID, name string) (bool, error) {
	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	entry, ok := doc.Sessions[sessionID]
	if !ok {
		return false, nil
	}
	entry.Name = name
	doc.Sessions[sessionID] = entry
	return true, s.Save(doc)
}

// GetSession returns the index entry for sessionID, if any.
func (s *IndexStore) GetSession(sessionID string) (protocol.IndexEntry, bool, error) {
	doc, err := s.Load()
	if err != nil {
		return protocol.IndexEntry{}, false, err
	}
	entry, ok := doc.Sessions[sessionID]
	return entry, ok, nil
}

// RemoveSession deletes sessionID from the index.
func (s *IndexStore) RemoveSession(sessionID string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	delete(doc.Sessions, sessionID)
	return s.Save(doc)
}

// GetAllSessions returns every entry, sorted by CreatedAt descending.
func (s *IndexStore) GetAllSessions() ([]protocol.IndexEntry, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	entries := make([]protocol.IndexEntry, 0, len(doc.Sessions))
	for _, e := range doc.Sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, erri := time.Parse(time.RFC3339Nano, entries[i].CreatedAt)
		tj, errj := time.Parse(time.RFC3339Nano, entries[j].CreatedAt)
		if erri != nil || errj != nil {
			return entries[i].CreatedAt > entries[j].CreatedAt
		}
		return ti.After(tj)
	})
	return entries, nil
}
