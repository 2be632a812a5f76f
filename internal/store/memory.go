package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps persons and users in process memory. It enforces the same
// constraints as the MongoDB schema and returns copies, so callers mutating a
// returned record must save it for the change to be visible.
type MemoryStore struct {
	mu      sync.RWMutex
	persons []*Person // insertion order
	users   []*User
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CountPersons returns the number of stored persons.
func (m *MemoryStore) CountPersons(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.persons)), nil
}

// ListPersons returns persons in insertion order filtered by phone presence.
func (m *MemoryStore) ListPersons(ctx context.Context, phone PhonePresence) ([]*Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Person, 0, len(m.persons))
	for _, p := range m.persons {
		switch phone {
		case PhoneYes:
			if !p.HasPhone() {
				continue
			}
		case PhoneNo:
			if p.HasPhone() {
				continue
			}
		}
		result = append(result, p.clone())
	}
	return result, nil
}

// FindPersonByName returns the person with exactly the given name.
func (m *MemoryStore) FindPersonByName(ctx context.Context, name string) (*Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.persons {
		if p.Name == name {
			return p.clone(), nil
		}
	}
	return nil, ErrNotFound
}

// PersonsByIDs returns the persons matching ids. Unknown ids are ignored.
func (m *MemoryStore) PersonsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var result []*Person
	for _, p := range m.persons {
		if _, ok := want[p.ID]; ok {
			result = append(result, p.clone())
		}
	}
	return result, nil
}

// CreatePerson validates and stores a new person, assigning its ID.
func (m *MemoryStore) CreatePerson(ctx context.Context, p *Person) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.persons {
		if existing.Name == p.Name {
			return fmt.Errorf("person name %q %w", p.Name, ErrDuplicate)
		}
	}

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.persons = append(m.persons, p.clone())
	return nil
}

// SavePerson replaces the stored person with the same ID.
func (m *MemoryStore) SavePerson(ctx context.Context, p *Person) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, existing := range m.persons {
		if existing.ID == p.ID {
			idx = i
			continue
		}
		if existing.Name == p.Name {
			return fmt.Errorf("person name %q %w", p.Name, ErrDuplicate)
		}
	}
	if idx < 0 {
		return fmt.Errorf("person %s: %w", p.ID.Hex(), ErrNotFound)
	}

	m.persons[idx] = p.clone()
	return nil
}

// FindUserByUsername returns the user with the given username.
func (m *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser validates and stores a new user, assigning its ID.
func (m *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q %w", u.Username, ErrDuplicate)
		}
	}

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Friends == nil {
		u.Friends = []primitive.ObjectID{}
	}
	m.users = append(m.users, u.clone())
	return nil
}

// AddFriends appends person references to a user's friends, skipping ids
// already present.
func (m *MemoryStore) AddFriends(ctx context.Context, username string, ids ...primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username != username {
			continue
		}
		for _, id := range ids {
			if !containsID(u.Friends, id) {
				u.Friends = append(u.Friends, id)
			}
		}
		return nil
	}
	return fmt.Errorf("user %q: %w", username, ErrNotFound)
}

// EnsureSchema is a no-op; constraints are checked on every write.
func (m *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Migrate reports the current contents. Writes are validated, so no invalid
// persons can exist.
func (m *MemoryStore) Migrate(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	m.mu.RLock()
	defer m.mu.RUnlock()

	known := make(map[primitive.ObjectID]struct{}, len(m.persons))
	for _, p := range m.persons {
		known[p.ID] = struct{}{}
	}
	stats.TotalPersons = int64(len(m.persons))
	stats.TotalUsers = int64(len(m.users))
	for _, u := range m.users {
		for _, id := range u.Friends {
			if _, ok := known[id]; !ok {
				stats.DanglingFriendRefs++
			}
		}
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
