package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/cnst"
	"github.com/nexushub/controlplane/internal/common/errorx"
	"github.com/nexushub/controlplane/pkg/metrics"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Actor identifies who performed a privileged mutation.
type Actor struct {
	ID       uint
	Username string
}

// Record describes one audit entry to append.
type Record struct {
	Action      string
	TargetType  string
	TargetID    uint
	TargetLabel string
	Level       string
	Description string
	Data        map[string]any
}

// Service appends and queries the audit log. Appends are fail-closed: callers
// invoke Append inside the same transaction as the mutation, so a failed audit
// write rolls the mutation back with it.
type Service struct {
	db      database.Database
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a new audit service. metrics may be nil.
func NewService(db database.Database, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		logger:  logger.Named("audit"),
		metrics: m,
	}
}

// Append persists an audit entry. Returns an error that the caller must treat
// as fatal for the surrounding transaction.
func (s *Service) Append(ctx context.Context, actor Actor, rec Record) error {
	level := rec.Level
	if level == "" {
		level = cnst.LevelInfo
	}

	payload := ""
	if rec.Data != nil {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return errorx.AuditFailure(rec.Action, err)
		}
		payload = string(raw)
	}

	entry := &database.AuditEntry{
		ActionType:    rec.Action,
		TargetType:    rec.TargetType,
		TargetID:      rec.TargetID,
		TargetLabel:   rec.TargetLabel,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		Level:         level,
		Description:   rec.Description,
		Data:          payload,
		CreatedAt:     time.Now(),
	}

	if err := s.db.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.Error("failed to persist audit entry",
			zap.String("action", rec.Action),
			zap.Uint("actor_id", actor.ID),
			zap.Error(err))
		return errorx.AuditFailure(rec.Action, err)
	}

	if s.metrics != nil {
		s.metrics.AuditAppended(rec.TargetType)
	}

	s.logger.Debug("audit entry recorded",
		zap.String("action", rec.Action),
		zap.String("target_type", rec.TargetType),
		zap.Uint("target_id", rec.TargetID),
		zap.Uint("actor_id", actor.ID))
	return nil
}

// QueryFilter extends the SQL-level filter with a JSON payload match. When
// PayloadPath is set the value at that path inside each entry's data must
// equal PayloadValue (compared as strings).
type QueryFilter struct {
	database.AuditFilter
	PayloadPath  string
	PayloadValue string
}

// Query returns matching audit entries, newest first, and the total match count.
func (s *Service) Query(ctx context.Context, filter *QueryFilter) ([]*database.AuditEntry, int64, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}

	if filter.PayloadPath == "" {
		return s.db.ListAuditEntries(ctx, &filter.AuditFilter)
	}

	// Payload paths are evaluated in memory; pull the full SQL-filtered set
	// and page afterwards.
	sqlFilter := filter.AuditFilter
	limit, offset := sqlFilter.Limit, sqlFilter.Offset
	sqlFilter.Limit, sqlFilter.Offset = 0, 0

	entries, _, err := s.db.ListAuditEntries(ctx, &sqlFilter)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*database.AuditEntry, 0, len(entries))
	for _, e := range entries {
		res := gjson.Get(e.Data, filter.PayloadPath)
		if res.Exists() && res.String() == filter.PayloadValue {
			matched = append(matched, e)
		}
	}

	total := int64(len(matched))
	if offset > 0 {
		if offset >= len(matched) {
			return []*database.AuditEntry{}, total, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}
