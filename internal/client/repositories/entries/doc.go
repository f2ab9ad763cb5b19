// Package entries is the device-side persistence layer for log entries.
//
// One SQLite table, log_entries, is keyed by the client-generated id and
// indexed on sync_state (the sync engine's pending lookup) and log_date (the
// per-day view). Timestamps are stored as fixed-width UTC text so that
// ordering by captured_at is creation order.
//
// Typical usage:
//
//	repo := entries.NewSQLiteRepository(db)
//	_ = repo.Upsert(ctx, entry)
//	pending, _ := repo.GetByState(ctx, models.StatePending)
package entries
