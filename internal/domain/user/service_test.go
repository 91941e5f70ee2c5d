package user

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[string]User)}
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return ErrNotFound
	}
	m.byID[u.ID] = *u
	return nil
}

func newTestService() *Service {
	return NewService(newMemRepo(), WithBcryptCost(bcrypt.MinCost))
}

func TestRegister(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{
		Email:    " alice@example.com ",
		Password: "correct horse",
		Name:     "Alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice", u.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("correct horse")))

	_, err = svc.Register(ctx, RegisterRequest{Email: "ALICE@example.com", Password: "another password"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{name: "MissingEmail", req: RegisterRequest{Password: "long enough"}, field: "email"},
		{name: "BadEmail", req: RegisterRequest{Email: "not-an-email", Password: "long enough"}, field: "email"},
		{name: "DisplayName", req: RegisterRequest{Email: "Bob <bob@example.com>", Password: "long enough"}, field: "email"},
		{name: "ShortPassword", req: RegisterRequest{Email: "bob@example.com", Password: "short"}, field: "password"},
		{name: "LongPassword", req: RegisterRequest{Email: "bob@example.com", Password: strings.Repeat("x", 73)}, field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService().Register(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Email: "carol@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "Carol@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = svc.Authenticate(ctx, "carol@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: "dave@example.com", Password: "first-pass", Name: "Dave"})
	require.NoError(t, err)

	name := "David"
	updated, err := svc.Update(ctx, u.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "David", updated.Name)

	_, err = svc.Authenticate(ctx, "dave@example.com", "first-pass")
	require.NoError(t, err)

	password := "second-pass"
	_, err = svc.Update(ctx, u.ID, Patch{Password: &password})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "dave@example.com", "first-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "dave@example.com", "second-pass")
	require.NoError(t, err)

	short := "tiny"
	_, err = svc.Update(ctx, u.ID, Patch{Password: &short})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, "missing", Patch{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
}
