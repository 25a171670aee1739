package principal

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestUserIDFromContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithUserID(context.Background(), snowflake.ID(42))
	id, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = UserIDFromContext(WithUserID(context.Background(), 0))
	assert.False(t, ok)
}
