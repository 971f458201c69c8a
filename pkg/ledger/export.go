// Package ledger exports ledger events as CSV
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Columns is the CSV header, in output order
var Columns = []string{
	"event_id",
	"workspace_key",
	"created_at",
	"actor",
	"event_type",
	"source",
	"reason",
	"item_id",
	"item_name",
	"category",
	"location",
	"delta_units",
	"resulting_units",
	"sync_status",
	"attempt_count",
	"last_sync_at",
	"last_sync_error",
	"correlation_id",
}

// WriteCSV writes a header row followed by one row per event. Times are RFC 3339 in UTC.
func WriteCSV(w io.Writer, events []models.LedgerEvent) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}

	for _, ev := range events {
		if err := writer.Write(row(ev)); err != nil {
			return fmt.Errorf("failed to write ledger event %s: %w", ev.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func row(ev models.LedgerEvent) []string {
	lastSync := ""
	if ev.LastSyncAt != nil {
		lastSync = ev.LastSyncAt.UTC().Format(time.RFC3339)
	}
	return []string{
		ev.ID.String(),
		ev.Workspace,
		ev.CreatedAt.UTC().Format(time.RFC3339),
		ev.Actor,
		string(ev.EventType),
		ev.Source,
		ev.Reason,
		ev.ItemID,
		ev.ItemName,
		ev.Category,
		ev.Location,
		strconv.Itoa(ev.DeltaUnits),
		strconv.Itoa(ev.ResultingUnits),
		string(ev.SyncStatus),
		strconv.Itoa(ev.AttemptCount),
		lastSync,
		ev.LastSyncError,
		ev.CorrelationID,
	}
}
