package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func strPtr(s string) *string { return &s }

func seedPersons(t *testing.T, s *MemoryStore) []*Person {
	t.Helper()
	persons := []*Person{
		{Name: "Arto Hellas", Phone: strPtr("040-123543"), Street: "Tapiolankatu 5 A", City: "Espoo"},
		{Name: "Matti Luukkainen", Phone: strPtr("040-432342"), Street: "Malminkaari 10 A", City: "Helsinki"},
		{Name: "Venla Ruuska", Street: "Nallemäentie 22 C", City: "Helsinki"},
	}
	for _, p := range persons {
		require.NoError(t, s.CreatePerson(context.Background(), p))
	}
	return persons
}

func TestMemoryStore_CreatePerson(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &Person{Name: "Arto Hellas", Street: "Tapiolankatu 5 A", City: "Espoo"}
	require.NoError(t, s.CreatePerson(ctx, p))
	assert.False(t, p.ID.IsZero(), "ID should be assigned")

	count, err := s.CountPersons(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	dup := &Person{Name: "Arto Hellas", Street: "Other", City: "Other"}
	err = s.CreatePerson(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, IsInvalidInput(err))
	assert.True(t, dup.ID.IsZero())

	count, err = s.CountPersons(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "failed insert must not change the count")
}

func TestMemoryStore_CreatePersonValidation(t *testing.T) {
	tests := []struct {
		name   string
		person *Person
		fields []string
	}{
		{
			name:   "missing name",
			person: &Person{Street: "s", City: "c"},
			fields: []string{"name"},
		},
		{
			name:   "missing street and city",
			person: &Person{Name: "n"},
			fields: []string{"street", "city"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			err := s.CreatePerson(context.Background(), tt.person)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, "Person", ve.Kind)

			var got []string
			for _, v := range ve.Violations {
				got = append(got, v.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)

			count, _ := s.CountPersons(context.Background())
			assert.Zero(t, count)
		})
	}
}

func TestMemoryStore_ListPersonsPhoneFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersons(t, s)

	all, err := s.ListPersons(ctx, PhoneAny)
	require.NoError(t, err)
	yes, err := s.ListPersons(ctx, PhoneYes)
	require.NoError(t, err)
	no, err := s.ListPersons(ctx, PhoneNo)
	require.NoError(t, err)

	assert.Len(t, all, 3)
	assert.Len(t, yes, 2)
	assert.Len(t, no, 1)
	assert.Equal(t, "Venla Ruuska", no[0].Name)

	// Insertion order is preserved.
	assert.Equal(t, "Arto Hellas", all[0].Name)
	assert.Equal(t, "Venla Ruuska", all[2].Name)

	// YES and NO partition the full listing.
	seen := map[string]int{}
	for _, p := range append(yes, no...) {
		seen[p.Name]++
	}
	for _, p := range all {
		assert.Equal(t, 1, seen[p.Name], "person %s", p.Name)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersons(t, s)

	p, err := s.FindPersonByName(ctx, "Arto Hellas")
	require.NoError(t, err)
	*p.Phone = "changed"
	p.City = "changed"

	again, err := s.FindPersonByName(ctx, "Arto Hellas")
	require.NoError(t, err)
	assert.Equal(t, "040-123543", *again.Phone)
	assert.Equal(t, "Espoo", again.City)
}

func TestMemoryStore_SavePerson(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersons(t, s)

	p, err := s.FindPersonByName(ctx, "Venla Ruuska")
	require.NoError(t, err)
	p.Phone = strPtr("040-1234567")
	require.NoError(t, s.SavePerson(ctx, p))

	got, err := s.FindPersonByName(ctx, "Venla Ruuska")
	require.NoError(t, err)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "040-1234567", *got.Phone)
	assert.Equal(t, "Nallemäentie 22 C", got.Street)
	assert.Equal(t, p.ID, got.ID)

	t.Run("rename onto existing name", func(t *testing.T) {
		p.Name = "Arto Hellas"
		assert.ErrorIs(t, s.SavePerson(ctx, p), ErrDuplicate)
	})

	t.Run("unknown id", func(t *testing.T) {
		ghost := &Person{ID: primitive.NewObjectID(), Name: "Ghost", Street: "s", City: "c"}
		assert.ErrorIs(t, s.SavePerson(ctx, ghost), ErrNotFound)
	})
}

func TestMemoryStore_FindPersonByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersons(t, s)

	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{name: "exact match", query: "Arto Hellas"},
		{name: "case differs", query: "arto hellas", wantErr: ErrNotFound},
		{name: "partial", query: "Arto", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.FindPersonByName(ctx, tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.query, p.Name)
		})
	}
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	persons := seedPersons(t, s)

	err := s.CreateUser(ctx, &User{Username: "ml"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "User validation failed: username: must be at least 3 characters long", err.Error())

	u := &User{Username: "mluukkai"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.False(t, u.ID.IsZero())
	assert.NotNil(t, u.Friends)

	assert.ErrorIs(t, s.CreateUser(ctx, &User{Username: "mluukkai"}), ErrDuplicate)

	require.NoError(t, s.AddFriends(ctx, "mluukkai", persons[2].ID, persons[0].ID))
	require.NoError(t, s.AddFriends(ctx, "mluukkai", persons[0].ID, persons[1].ID))

	got, err := s.FindUserByUsername(ctx, "mluukkai")
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{persons[2].ID, persons[0].ID, persons[1].ID}, got.Friends)

	assert.ErrorIs(t, s.AddFriends(ctx, "nobody", persons[0].ID), ErrNotFound)

	_, err = s.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PersonsByIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	persons := seedPersons(t, s)

	got, err := s.PersonsByIDs(ctx, []primitive.ObjectID{persons[1].ID, primitive.NewObjectID()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, persons[1].Name, got[0].Name)
}

func TestMemoryStore_Migrate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	persons := seedPersons(t, s)

	require.NoError(t, s.CreateUser(ctx, &User{Username: "mluukkai"}))
	require.NoError(t, s.AddFriends(ctx, "mluukkai", persons[0].ID, primitive.NewObjectID()))

	stats, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPersons)
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.DanglingFriendRefs)
	assert.Zero(t, stats.InvalidPersons)
	assert.False(t, stats.EndTime.Before(stats.StartTime))
}

// Concurrent read-modify-write edits are last-write-wins: every save lands and
// the final phone is one of the written values.
func TestMemoryStore_ConcurrentEditsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersons(t, s)

	phones := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	var wg sync.WaitGroup
	for _, phone := range phones {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			p, err := s.FindPersonByName(ctx, "Venla Ruuska")
			if err != nil {
				t.Error(err)
				return
			}
			p.Phone = &phone
			if err := s.SavePerson(ctx, p); err != nil {
				t.Error(err)
			}
		}(phone)
	}
	wg.Wait()

	got, err := s.FindPersonByName(ctx, "Venla Ruuska")
	require.NoError(t, err)
	require.NotNil(t, got.Phone)
	assert.Contains(t, phones, *got.Phone)

	count, _ := s.CountPersons(ctx)
	assert.Equal(t, int64(3), count)
}
