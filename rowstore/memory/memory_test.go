package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
	"github.com/dnyanpeeth/fee-ledger/rowstore/memory"
	"github.com/dnyanpeeth/fee-ledger/rowstore/rowstoretest"
)

func TestSheet_Contract(t *testing.T) {
	rowstoretest.Run(t, func(t *testing.T) rowstore.Adapter {
		return memory.New("Student")
	}, rowstoretest.Options{})
}

func TestSheet_FailNextFiresOnce(t *testing.T) {
	// GIVEN: An injected insert failure
	// WHEN: Inserting twice
	// THEN: The first call fails as a StoreError, the second succeeds
	ctx := context.Background()
	s := memory.New("Student")
	s.FailNext("insert", errors.New("quota exceeded"))

	err := s.Insert(ctx, rowstore.Row{"id": "1"})
	assert.True(t, rowstore.IsStoreError(err))
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, s.Len())

	require.NoError(t, s.Insert(ctx, rowstore.Row{"id": "1"}))
	assert.Equal(t, 1, s.Len())
}

func TestSheet_FailNextNilClears(t *testing.T) {
	s := memory.New("Student")
	s.FailNext("fetch_all", errors.New("down"))
	s.FailNext("fetch_all", nil)

	_, err := s.FetchAll(context.Background())
	assert.NoError(t, err)
}

func TestSheet_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New("Student")
	require.NoError(t, s.Insert(ctx, rowstore.Row{"id": "1", "username": "Ravi"}))

	rows, err := s.FetchAll(ctx)
	require.NoError(t, err)
	rows[0]["username"] = "mutated"

	again, err := s.Search(ctx, rowstore.Predicate{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", again[0]["username"])
	assert.Equal(t, "Student", s.Name())
}
