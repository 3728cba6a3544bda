package redisstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
	"github.com/dnyanpeeth/fee-ledger/rowstore/rowstoretest"
	"github.com/dnyanpeeth/fee-ledger/store/redisstore"
)

// These tests need a live server: REDIS_ADDR=localhost:6379 go test ./store/redisstore
func TestSheet_Contract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := redisstore.Connect(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	n := 0
	rowstoretest.Run(t, func(t *testing.T) rowstore.Adapter {
		n++
		prefix := fmt.Sprintf("ledgertest-%d-%d", time.Now().UnixNano(), n)
		t.Cleanup(func() {
			keys, _ := client.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		})
		return redisstore.New(client, prefix, "Student")
	}, rowstoretest.Options{})
}
