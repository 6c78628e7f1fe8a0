package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safezone-api-server/internal/models"
	"safezone-api-server/pkg/e"
)

func init() {
	BcryptCost = 4
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	signed, exp, err := tokens.Generate("ops@dmc.lk", models.RoleOperator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "ops@dmc.lk", claims.Email)
	assert.Equal(t, models.RoleOperator, claims.Role)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	signed, _, err := tokens.Generate("a@b.lk", models.RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokens("other", time.Hour).Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Generate("a@b.lk", models.RoleAdmin)
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRoleAuthorizer(t *testing.T) {
	a := NewRoleAuthorizer()
	ctx := context.Background()

	err := a.Authorize(ctx, OpCreate)
	assert.True(t, errors.Is(err, e.ErrUnauthorized))

	cases := []struct {
		role string
		op   Operation
		ok   bool
	}{
		{models.RoleSuperAdmin, OpDelete, true},
		{models.RoleAdmin, OpCreate, true},
		{models.RoleAdmin, OpSetOccupancy, true},
		{models.RoleOperator, OpSetOccupancy, true},
		{models.RoleOperator, OpUpdate, false},
		{models.RoleOperator, OpUploadPhoto, false},
		{"viewer", OpSetOccupancy, false},
	}
	for _, tc := range cases {
		err := a.Authorize(WithCaller(ctx, Caller{Email: "x@y.lk", Role: tc.role}), tc.op)
		if tc.ok {
			assert.NoError(t, err, "%s %s", tc.role, tc.op)
		} else {
			assert.True(t, errors.Is(err, e.ErrForbidden), "%s %s", tc.role, tc.op)
		}
	}

	assert.NoError(t, AllowAll{}.Authorize(ctx, OpDelete))
}
