package storage_test

import (
	"context"
	"protalent/backend/internal/config"
	"protalent/backend/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	s, err := storage.Open(ctx, config.Config{StoreDriver: config.DriverMemory, StoreTimeout: time.Second}, logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, s)
	assert.NoError(t, s.Ping(ctx))

	s, err = storage.Open(ctx, config.Config{StoreDriver: "sqlite"}, logger)
	assert.Error(t, err)
	assert.Nil(t, s)
}
