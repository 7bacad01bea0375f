package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextCarriers(t *testing.T) {
	ctx := context.Background()

	_, ok := GetActorFromContext(ctx)
	assert.False(t, ok)
	_, ok = GetCorrelationIdFromContext(ctx)
	assert.False(t, ok)

	ctx = SetActorInContext(ctx, "jana")
	ctx = SetCorrelationIdInContext(ctx, "req-42")

	actor, ok := GetActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "jana", actor)

	cid, ok := GetCorrelationIdFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-42", cid)
}
