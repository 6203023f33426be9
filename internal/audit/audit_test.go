package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, database.Database) {
	t.Helper()
	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, zap.NewNop(), nil), db
}

func TestAudit_AppendAndQuery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	actor := Actor{ID: 1, Username: "alice"}

	require.NoError(t, svc.Append(ctx, actor, Record{
		Action:     cnst.ActionTenantCreated,
		TargetType: cnst.TargetTenant,
		TargetID:   2,
		Data:       map[string]any{"name": "Child", "parent_id": 1},
	}))
	require.NoError(t, svc.Append(ctx, actor, Record{
		Action:     cnst.ActionTenantMoved,
		TargetType: cnst.TargetTenant,
		TargetID:   2,
		Level:      cnst.LevelWarning,
		Data:       map[string]any{"from": 1, "to": 3},
	}))

	got, total, err := svc.Query(ctx, &QueryFilter{
		AuditFilter: database.AuditFilter{ActionType: cnst.ActionTenantCreated},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].ActorUsername)
	assert.Equal(t, cnst.LevelInfo, got[0].Level)
}

func TestAudit_QueryPayloadPath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	actor := Actor{ID: 1, Username: "alice"}

	for _, to := range []int{3, 3, 5} {
		require.NoError(t, svc.Append(ctx, actor, Record{
			Action:     cnst.ActionTenantMoved,
			TargetType: cnst.TargetTenant,
			TargetID:   2,
			Data:       map[string]any{"from": 1, "to": to},
		}))
	}

	got, total, err := svc.Query(ctx, &QueryFilter{
		PayloadPath:  "to",
		PayloadValue: "3",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, got, 2)

	// paging applies after the payload match
	got, total, err = svc.Query(ctx, &QueryFilter{
		AuditFilter:  database.AuditFilter{Limit: 1},
		PayloadPath:  "to",
		PayloadValue: "3",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, got, 1)
}

type failingDB struct {
	database.Database
}

func (f *failingDB) CreateAuditEntry(ctx context.Context, entry *database.AuditEntry) error {
	return errors.New("disk full")
}

func TestAudit_AppendFailureIsAPIError(t *testing.T) {
	svc := NewService(&failingDB{}, zap.NewNop(), nil)
	err := svc.Append(context.Background(), Actor{ID: 1}, Record{
		Action:     cnst.ActionTenantDeleted,
		TargetType: cnst.TargetTenant,
	})
	require.Error(t, err)
	var apiErr *errorx.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errorx.ErrAuditWriteFailed.Code, apiErr.Code)
}
