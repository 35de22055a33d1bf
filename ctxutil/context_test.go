package ctxutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnsureTraceIDKeepsExisting(t *testing.T) {
	ctx := SetTraceID(context.Background(), "trace-1")
	ctx, id := EnsureTraceID(ctx)
	assert.Equal(t, "trace-1", id)
	assert.Equal(t, "trace-1", GetTraceID(ctx))
}

func TestEnsureTraceIDGenerates(t *testing.T) {
	ctx, id := EnsureTraceID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetTraceID(ctx))
}

func TestWithAsyncContextSurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(SetSessionID(context.Background(), "s1"))
	async, asyncCancel := WithAsyncContext(parent, time.Second)
	defer asyncCancel()

	cancel()
	assert.NoError(t, async.Err())
	assert.Equal(t, "s1", GetSessionID(async))
}
