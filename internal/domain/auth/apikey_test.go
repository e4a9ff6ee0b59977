package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	keys map[string]*Key
	err  error
}

func (m *mockRepo) FindByHash(_ context.Context, hash string) (*Key, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return k, nil
}

func TestHash(t *testing.T) {
	t.Parallel()

	a := Hash([]byte("pepper"), "secret")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Hash([]byte("pepper"), "secret"))
	assert.NotEqual(t, a, Hash([]byte("other"), "secret"))
	assert.NotEqual(t, a, Hash([]byte("pepper"), "secret2"))
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	pepper := []byte("pepper")
	stored := &Key{ID: "k1", Hash: Hash(pepper, "good-key"), Name: "ci", Scopes: []string{ScopeWrite}}
	repo := &mockRepo{keys: map[string]*Key{stored.Hash: stored}}
	a := NewAuthenticator(repo, pepper)
	ctx := context.Background()

	key, err := a.Authenticate(ctx, " good-key ")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.ID)
	assert.True(t, key.Allows(ScopeWrite))

	_, err = a.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, "bad-key")
	require.ErrorIs(t, err, ErrUnauthorized)

	repo.err = errors.New("pool closed")
	_, err = a.Authenticate(ctx, "good-key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticator_HashMismatch(t *testing.T) {
	t.Parallel()

	pepper := []byte("pepper")
	h := Hash(pepper, "key")
	repo := &mockRepo{keys: map[string]*Key{h: {ID: "k1", Hash: "deadbeef"}}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestKey_Allows(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Key{}).Allows(ScopeWrite))
	assert.True(t, (&Key{Scopes: []string{ScopeAll}}).Allows(ScopeWrite))
	assert.False(t, (&Key{Scopes: []string{"read"}}).Allows(ScopeWrite))
}
