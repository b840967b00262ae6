package screen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlink/screenlink/internal/screen"
)

func TestService_IsOwner(t *testing.T) {
	repo := screen.NewInMemoryRepository()
	repo.Put(&screen.Screen{ID: "scr_1", OwnerID: "usr_owner"})
	svc := screen.NewService(repo)
	ctx := context.Background()

	owner, err := svc.IsOwner(ctx, "usr_owner", "scr_1")
	require.NoError(t, err)
	assert.True(t, owner)

	owner, err = svc.IsOwner(ctx, "usr_other", "scr_1")
	require.NoError(t, err)
	assert.False(t, owner)

	owner, err = svc.IsOwner(ctx, "", "scr_1")
	require.NoError(t, err)
	assert.False(t, owner)

	_, err = svc.IsOwner(ctx, "usr_owner", "scr_missing")
	assert.ErrorIs(t, err, screen.ErrScreenNotFound)
}
