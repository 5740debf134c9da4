package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchWriter sends bulk writes through the transaction in ctx: COPY for
// plain inserts and pgx batches for many small statements.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a batch writer.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// InTx reports whether ctx carries a transaction the writer can use.
func (b *BatchWriter) InTx(ctx context.Context) bool {
	return b != nil && b.txManager.GetTx(ctx) != nil
}

// CopyFromSlice bulk inserts rows with the COPY protocol.
func (b *BatchWriter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// ExecuteBatch executes queries in a single round-trip and returns the rows
// affected by each.
func (b *BatchWriter) ExecuteBatch(ctx context.Context, queries []BatchQuery) ([]int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("ExecuteBatch requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	affected := make([]int64, 0, len(queries))
	for range queries {
		tag, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch query failed: %w", err)
		}
		affected = append(affected, tag.RowsAffected())
	}
	return affected, nil
}
