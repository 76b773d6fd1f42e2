package engine

import (
	"context"
	"time"
)

// RecordsInPartition returns a partition's derived records in chronological
// order, for the reporting collaborator. Read-only.
func (e *Engine) RecordsInPartition(ctx context.Context, partitionKey string) ([]DerivedRecord, error) {
	if partitionKey == "" {
		return nil, ErrMissingPartitionKey
	}
	var records []DerivedRecord
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		records, err = tx.DerivedInPartition(partitionKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SummariesOn returns the daily summaries for one UTC date. Read-only.
func (e *Engine) SummariesOn(ctx context.Context, date time.Time) ([]DailySummary, error) {
	var rows []DailySummary
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		rows, err = tx.SummariesOn(midnightUTC(date))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
