// Package rowstoretest holds the behaviour every rowstore.Adapter must share.
// Backend packages run it from their own tests.
package rowstoretest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Options relaxes the suite for adapters with a narrower match surface.
type Options struct {
	// SingleFieldWrites marks adapters whose Update/Delete accept exactly
	// one match field.
	SingleFieldWrites bool
}

// Run exercises newAdapter against the Adapter contract. newAdapter must
// return an empty sheet on every call.
func Run(t *testing.T, newAdapter func(t *testing.T) rowstore.Adapter, opts Options) {
	ctx := context.Background()

	seed := func(t *testing.T, a rowstore.Adapter) {
		t.Helper()
		for _, row := range []rowstore.Row{
			{"id": "1", "username": "Ravi", "monthly_fee": "500"},
			{"id": "1", "username": "Ravi", "month": "0", "year": "2025", "status": "Paid", "row_key": "1#2025-01"},
			{"id": "1", "username": "Ravi", "month": "1", "year": "2025", "status": "Unpaid", "row_key": "1#2025-02"},
			{"id": "2", "username": "Meera", "monthly_fee": "0"},
		} {
			require.NoError(t, a.Insert(ctx, row))
		}
	}

	t.Run("FetchAll empty is success", func(t *testing.T) {
		rows, err := newAdapter(t).FetchAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("FetchAll keeps insertion order", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		rows, err := a.FetchAll(ctx)
		require.NoError(t, err)

		require.Len(t, rows, 4)
		assert.Equal(t, "", rows[0]["month"])
		assert.Equal(t, "0", rows[1]["month"])
		assert.Equal(t, "1", rows[2]["month"])
		assert.Equal(t, "2", rows[3]["id"])
		for _, c := range rowstore.Columns {
			_, ok := rows[0][c]
			assert.True(t, ok, "column %s present", c)
		}
	})

	t.Run("Search no match is empty, not an error", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		rows, err := a.Search(ctx, rowstore.Predicate{"id": "404", "month": "3", "year": "2025"})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Search matches every field", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		rows, err := a.Search(ctx, rowstore.Predicate{"id": "1", "month": "1", "year": "2025"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Unpaid", rows[0]["status"])

		rows, err = a.Search(ctx, rowstore.Predicate{"id": "1", "month": ""})
		require.NoError(t, err)
		require.Len(t, rows, 1, "empty value matches the profile row only")
		assert.Equal(t, "500", rows[0]["monthly_fee"])
	})

	t.Run("Search rejects unknown columns", func(t *testing.T) {
		_, err := newAdapter(t).Search(ctx, rowstore.Predicate{"nickname": "x"})
		assert.ErrorIs(t, err, rowstore.ErrUnknownColumn)
		assert.True(t, rowstore.IsStoreError(err))
	})

	t.Run("Insert without id fails", func(t *testing.T) {
		a := newAdapter(t)
		err := a.Insert(ctx, rowstore.Row{"username": "nobody"})
		assert.ErrorIs(t, err, rowstore.ErrMissingIdentity)

		rows, err := a.FetchAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Update writes matching rows only", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		n, err := a.Update(ctx, rowstore.Predicate{"row_key": "1#2025-02"}, rowstore.Row{"status": "Paid", "amount": "500"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		rows, err := a.Search(ctx, rowstore.Predicate{"row_key": "1#2025-02"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Paid", rows[0]["status"])
		assert.Equal(t, "500", rows[0]["amount"])
		assert.Equal(t, "Ravi", rows[0]["username"], "untouched columns survive")

		other, err := a.Search(ctx, rowstore.Predicate{"row_key": "1#2025-01"})
		require.NoError(t, err)
		require.Len(t, other, 1)
		assert.Equal(t, "", other[0]["amount"])
	})

	t.Run("Update broadcasts on id", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		n, err := a.Update(ctx, rowstore.Predicate{"id": "1"}, rowstore.Row{"username": "Ravi K"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		rows, err := a.Search(ctx, rowstore.Predicate{"username": "Ravi K"})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("Update with zero matches is a no-op", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		n, err := a.Update(ctx, rowstore.Predicate{"id": "404"}, rowstore.Row{"username": "x"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Update rejects unknown columns", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		_, err := a.Update(ctx, rowstore.Predicate{"id": "1"}, rowstore.Row{"nickname": "x"})
		assert.ErrorIs(t, err, rowstore.ErrUnknownColumn)
	})

	t.Run("Delete removes matching rows", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)

		n, err := a.Delete(ctx, rowstore.Predicate{"id": "1"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		rows, err := a.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "2", rows[0]["id"])

		n, err = a.Delete(ctx, rowstore.Predicate{"id": "1"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("multi-field writes", func(t *testing.T) {
		a := newAdapter(t)
		seed(t, a)
		p := rowstore.Predicate{"id": "1", "month": "0", "year": "2025"}

		n, err := a.Update(ctx, p, rowstore.Row{"status": "Unpaid"})
		if opts.SingleFieldWrites {
			assert.True(t, errors.Is(err, rowstore.ErrUnsupportedMatch))
			_, err = a.Delete(ctx, p)
			assert.True(t, errors.Is(err, rowstore.ErrUnsupportedMatch))
			return
		}
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = a.Delete(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		rows, err := a.FetchAll(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})
}
