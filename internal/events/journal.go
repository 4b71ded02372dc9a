// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neurogears/antsct-prep/internal/coredb"
	"go.uber.org/zap"
)

// JournalSink persists every event in the Core DB journal.
type JournalSink struct {
	eventSink
	journal *coredb.Journal
	logger  *zap.Logger
	nowFn   func() time.Time
}

// NewJournalSink returns nil when journal is nil so it drops out of a composite.
func NewJournalSink(journal *coredb.Journal, logger *zap.Logger) Sink {
	if journal == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &JournalSink{
		journal: journal,
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	s.eventSink = eventSink{publish: s.persist}
	return s
}

func (s *JournalSink) persist(ev RunEvent) {
	ev.Timestamp = s.nowFn()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode run event", zap.String("run_id", ev.RunID), zap.Error(err))
		return
	}
	if _, err := s.journal.Append(context.Background(), ev.RunID, ev.Type, payload, ev.Timestamp); err != nil {
		if coredb.IsQuotaExceeded(err) {
			s.logger.Warn("journal quota exceeded, event dropped",
				zap.String("run_id", ev.RunID),
				zap.String("event", ev.Type))
			return
		}
		s.logger.Error("persist run event",
			zap.String("run_id", ev.RunID),
			zap.String("event", ev.Type),
			zap.Error(err))
	}
}
