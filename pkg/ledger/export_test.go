package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestWriteCSV(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	synced := created.Add(90 * time.Second)

	events := []models.LedgerEvent{
		{
			ID:             uuid.MustParse("6f1c1c3e-8a57-4f0e-9a55-0c1f5d0e7a01"),
			Workspace:      "ws-1",
			CreatedAt:      created,
			Actor:          "ops@example.com",
			EventType:      models.LedgerReceipt,
			Source:         "catalog",
			Reason:         "Delivery, pallet 4",
			ItemID:         "item-1",
			ItemName:       "Widget \"XL\"",
			Category:       "Hardware",
			Location:       "Aisle 3",
			DeltaUnits:     12,
			ResultingUnits: 52,
			SyncStatus:     models.LedgerSyncSynced,
			AttemptCount:   1,
			LastSyncAt:     &synced,
			CorrelationID:  "6f1c1c3e-8a57-4f0e-9a55-0c1f5d0e7a01",
		},
		{
			ID:             uuid.MustParse("0b9d7c44-2f6e-4a4b-8d1e-3e6c2b1a9f02"),
			Workspace:      "ws-1",
			CreatedAt:      created.Add(time.Minute),
			Actor:          "system",
			EventType:      models.LedgerCountCorrection,
			Source:         "integration.square",
			Reason:         "Accepted Square value for quantity_mismatch",
			ItemID:         "item-2",
			ItemName:       "Gadget",
			DeltaUnits:     -3,
			ResultingUnits: 7,
			SyncStatus:     models.LedgerSyncFailed,
			AttemptCount:   2,
			LastSyncAt:     &synced,
			LastSyncError:  "no connected provider",
			CorrelationID:  "a3e7c1f0-5d2b-4c8e-9f61-7b0d2e4a6c03",
		},
		{
			ID:             uuid.MustParse("d4c2b1a0-9e8f-4d7c-8b6a-5f4e3d2c1b04"),
			Workspace:      "ws-1",
			CreatedAt:      created.Add(2 * time.Minute),
			Actor:          "system",
			EventType:      models.LedgerAdjustment,
			ItemID:         "item-3",
			DeltaUnits:     1,
			ResultingUnits: 1,
			SyncStatus:     models.LedgerSyncPending,
			CorrelationID:  "d4c2b1a0-9e8f-4d7c-8b6a-5f4e3d2c1b04",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, events))

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "ledger_export", buf.Bytes())
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "ledger_empty", buf.Bytes())
}
