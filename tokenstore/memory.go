package tokenstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	userID, deviceID, secretHash string
}

type deviceKey struct {
	userID, deviceID string
}

// MemoryStore keeps records in process memory. It is meant for tests and
// single-instance development setups.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]*Record
	devices map[deviceKey][]recordKey
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]*Record),
		devices: make(map[deviceKey][]recordKey),
	}
}

func (m *MemoryStore) Find(ctx context.Context, userID, deviceID, secretHash string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey{userID, deviceID, secretHash}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneRecord(rec)
	return &cp, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if err := rec.validate(); err != nil {
		return err
	}

	ensureID(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{rec.UserID, rec.DeviceID, rec.SecretHash}
	if _, exists := m.records[key]; exists {
		return ErrDuplicate
	}
	if rec.ParentHash != "" {
		parent, ok := m.records[recordKey{rec.UserID, rec.DeviceID, rec.ParentHash}]
		if !ok || parent.Revoked {
			return ErrParentRevoked
		}
	}
	cp := cloneRecord(rec)
	m.records[key] = &cp
	dk := deviceKey{rec.UserID, rec.DeviceID}
	m.devices[dk] = append(m.devices[dk], key)
	return nil
}

func (m *MemoryStore) MarkUsed(ctx context.Context, userID, deviceID, secretHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey{userID, deviceID, secretHash}]
	switch {
	case !ok:
		return ErrNotFound
	case rec.Revoked:
		return ErrRevoked
	case rec.Used:
		return ErrAlreadyUsed
	}
	rec.Used = true
	usedAt := at
	rec.UsedAt = &usedAt
	return nil
}

func (m *MemoryStore) RevokeDevice(ctx context.Context, userID, deviceID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, key := range m.devices[deviceKey{userID, deviceID}] {
		rec := m.records[key]
		if rec.Revoked {
			continue
		}
		rec.Revoked = true
		revokedAt := at
		rec.RevokedAt = &revokedAt
		n++
	}
	return n, nil
}

func (m *MemoryStore) ListDevice(ctx context.Context, userID, deviceID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.devices[deviceKey{userID, deviceID}]
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, cloneRecord(m.records[key]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneRecord(rec *Record) Record {
	cp := *rec
	if rec.UsedAt != nil {
		t := *rec.UsedAt
		cp.UsedAt = &t
	}
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		cp.RevokedAt = &t
	}
	return cp
}
