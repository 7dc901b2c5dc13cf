package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergiecode/gemini-chat-backend/internal/model/user"
)

func TestNewMemoryProviderParsesSeed(t *testing.T) {
	p := NewMemoryProvider("tok1:u1:ana@example.com:Ana, tok2:u2, broken, :nouid")

	u, err := p.Verify(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UID)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "Ana", u.Name)

	u, err = p.Verify(context.Background(), "tok2")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.UID)
	assert.Empty(t, u.Email)
}

func TestVerifyUnknownToken(t *testing.T) {
	p := NewMemoryProvider("")

	_, err := p.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegister(t *testing.T) {
	p := NewMemoryProvider("")
	p.Register("tok", user.User{UID: "u9", Name: "Nia"})

	u, err := p.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u9", u.UID)
}
