package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contentmodels "findiff/internal/content/models"
	"findiff/internal/kpi/models"
	"findiff/internal/kpi/store"
	upmodels "findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/requestcontext"
)

type directory map[id.UserID]*upmodels.User

func (d directory) Users(_ context.Context, ids []id.UserID) (map[id.UserID]*upmodels.User, error) {
	out := make(map[id.UserID]*upmodels.User)
	for _, userID := range ids {
		if u, ok := d[userID]; ok {
			out[userID] = u
		}
	}
	return out, nil
}

func TestSummary(t *testing.T) {
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	zoe := &upmodels.User{ID: id.UserID(uuid.New()), Username: "zoe", Nickname: "Z"}
	adam := &upmodels.User{ID: id.UserID(uuid.New()), Username: "adam"}
	svc := New(store.New(), directory{zoe.ID: zoe, adam.ID: adam})

	ctx := requestcontext.WithTime(context.Background(), march)
	require.NoError(t, svc.Add(ctx,
		models.Record{UserID: zoe.ID, Type: models.TypeForWritingMode(contentmodels.WritingModeVertical), TriggerStep: models.TriggerQA},
		models.Record{UserID: zoe.ID, Type: models.TypeVerticalAudit, TriggerStep: models.TriggerQA},
		models.Record{UserID: adam.ID, Type: models.TypeHorizontalAudit, TriggerStep: models.TriggerQA},
		models.Record{UserID: adam.ID, Type: models.TypeReturnedShuffle, TriggerStep: models.TriggerFirstAudit},
	))
	later := requestcontext.WithTime(context.Background(), march.AddDate(0, 1, 0))
	require.NoError(t, svc.Add(later,
		models.Record{UserID: zoe.ID, Type: models.TypeHorizontalAudit, Count: 5, TriggerStep: models.TriggerQA},
	))

	t.Run("sums per user per type sorted by username", func(t *testing.T) {
		rows, err := svc.Summary(context.Background(), models.Filter{})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "adam", rows[0].Username)
		assert.Equal(t, map[models.Type]int{models.TypeHorizontalAudit: 1, models.TypeReturnedShuffle: 1}, rows[0].Totals)
		assert.Equal(t, "Z", rows[1].DisplayName)
		assert.Equal(t, map[models.Type]int{models.TypeVerticalAudit: 2, models.TypeHorizontalAudit: 5}, rows[1].Totals)
	})

	t.Run("created range", func(t *testing.T) {
		rows, err := svc.Summary(context.Background(), models.Filter{
			Created: contentmodels.TimeRange{From: march, To: march.AddDate(0, 0, 7)},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, map[models.Type]int{models.TypeVerticalAudit: 2}, rows[1].Totals)
	})

	t.Run("search by nickname", func(t *testing.T) {
		rows, err := svc.Summary(context.Background(), models.Filter{Search: "z"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, zoe.ID, rows[0].UserID)
	})

	t.Run("by user", func(t *testing.T) {
		rows, err := svc.Summary(context.Background(), models.Filter{UserID: adam.ID})
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})
}

func TestAddRejectsUnknownTypes(t *testing.T) {
	svc := New(store.New(), directory{})
	err := svc.Add(context.Background(), models.Record{UserID: id.UserID(uuid.New()), Type: "bonus", TriggerStep: models.TriggerQA})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	err = svc.Add(context.Background(), models.Record{Type: models.TypeVerticalAudit, TriggerStep: models.TriggerQA})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestForOrder(t *testing.T) {
	svc := New(store.New(), directory{})
	orderID := id.OrderID(uuid.New())
	require.NoError(t, svc.Add(context.Background(),
		models.Record{UserID: id.UserID(uuid.New()), Type: models.TypeReturnedShuffle, TriggerStep: models.TriggerQA, OrderID: orderID},
		models.Record{UserID: id.UserID(uuid.New()), Type: models.TypeReturnedShuffle, TriggerStep: models.TriggerQA},
	))
	records, err := svc.ForOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Count)
}
