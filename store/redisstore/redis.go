// Package redisstore implements rowstore.Adapter on Redis.
//
// Layout per sheet (prefix defaults to "ledger"):
//
//	<prefix>:<sheet>:seq        counter, next row number
//	<prefix>:<sheet>:rows       sorted set, member = row number, score = row number
//	<prefix>:<sheet>:row:<n>    hash, column -> value
//
// Redis has no secondary indexes here, so Search scans the sheet like the
// browser key-value store this backend replaces.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Sheet is a rowstore.Adapter over one Redis-backed sheet.
type Sheet struct {
	Client *redis.Client
	prefix string
	name   string
}

// New binds a sheet to a client.
func New(client *redis.Client, prefix, sheet string) *Sheet {
	if prefix == "" {
		prefix = "ledger"
	}
	return &Sheet{Client: client, prefix: prefix, name: sheet}
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *Sheet) seqKey() string         { return s.prefix + ":" + s.name + ":seq" }
func (s *Sheet) indexKey() string       { return s.prefix + ":" + s.name + ":rows" }
func (s *Sheet) rowKey(n string) string { return s.prefix + ":" + s.name + ":row:" + n }

// entry is a stored row with its row number.
type entry struct {
	n   string
	row rowstore.Row
}

func (s *Sheet) scan(ctx context.Context, op string) ([]entry, error) {
	ids, err := s.Client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, rowstore.Wrap(op, fmt.Errorf("failed to read row index: %w", err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.Client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.rowKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, rowstore.Wrap(op, fmt.Errorf("failed to read rows: %w", err))
	}

	out := make([]entry, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// Index entry without a hash: a delete raced us. Skip it.
			continue
		}
		out = append(out, entry{n: ids[i], row: rowstore.Row(data).Normalized()})
	}
	return out, nil
}

// FetchAll returns every row in insertion order.
func (s *Sheet) FetchAll(ctx context.Context) ([]rowstore.Row, error) {
	return s.Search(ctx, nil)
}

// Search returns matching rows in insertion order.
func (s *Sheet) Search(ctx context.Context, p rowstore.Predicate) ([]rowstore.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.scan(ctx, "search")
	if err != nil {
		return nil, err
	}
	out := make([]rowstore.Row, 0, len(entries))
	for _, e := range entries {
		if p.Matches(e.row) {
			out = append(out, e.row)
		}
	}
	return out, nil
}

// Insert appends a row.
func (s *Sheet) Insert(ctx context.Context, row rowstore.Row) error {
	if err := rowstore.RequireIdentity("insert", row); err != nil {
		return err
	}
	if err := rowstore.CheckFields("insert", row); err != nil {
		return err
	}

	seq, err := s.Client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return rowstore.Wrap("insert", fmt.Errorf("failed to allocate row number: %w", err))
	}
	n := strconv.FormatInt(seq, 10)

	values := make(map[string]interface{}, len(rowstore.Columns))
	for k, v := range row.Normalized() {
		values[k] = v
	}

	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, s.rowKey(n), values)
	pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(seq), Member: n})
	if _, err := pipe.Exec(ctx); err != nil {
		return rowstore.Wrap("insert", fmt.Errorf("failed to write row: %w", err))
	}
	return nil
}

// Update writes fields into every matching row.
func (s *Sheet) Update(ctx context.Context, p rowstore.Predicate, fields rowstore.Row) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := rowstore.CheckFields("update", fields); err != nil {
		return 0, err
	}
	entries, err := s.scan(ctx, "update")
	if err != nil {
		return 0, err
	}

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pipe := s.Client.Pipeline()
	n := 0
	for _, e := range entries {
		if !p.Matches(e.row) {
			continue
		}
		n++
		if len(values) > 0 {
			pipe.HSet(ctx, s.rowKey(e.n), values)
		}
	}
	if n == 0 || len(values) == 0 {
		return n, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, rowstore.Wrap("update", fmt.Errorf("failed to update rows: %w", err))
	}
	return n, nil
}

// Delete removes every matching row.
func (s *Sheet) Delete(ctx context.Context, p rowstore.Predicate) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	entries, err := s.scan(ctx, "delete")
	if err != nil {
		return 0, err
	}

	pipe := s.Client.Pipeline()
	n := 0
	for _, e := range entries {
		if !p.Matches(e.row) {
			continue
		}
		n++
		pipe.ZRem(ctx, s.indexKey(), e.n)
		pipe.Del(ctx, s.rowKey(e.n))
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, rowstore.Wrap("delete", fmt.Errorf("failed to delete rows: %w", err))
	}
	return n, nil
}
