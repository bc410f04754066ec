package duesched

import (
	"context"
	"time"

	"nagbot/internal/storage"
	logx "nagbot/pkg/logx"
)

// Sanitize purges records the ticker can only skip: rows missing their chat
// or message id, or carrying a due date that no longer parses. Runs from the
// nightly cron job.
func (s *Scheduler) Sanitize(ctx context.Context) {
	list, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("sanitation list failed", logx.Err(err))
		return
	}

	removed := 0
	for _, r := range list {
		bad := r.ChatID == 0 || r.MessageID == 0 || r.DueAt == ""
		if !bad {
			_, perr := time.ParseInLocation(storage.DateLayout, r.DueAt, s.loc)
			bad = perr != nil
		}
		if !bad {
			continue
		}
		if err := s.store.Delete(ctx, r.MessageID); err != nil {
			s.log.Warn("corrupt reminder delete failed", logx.Err(err), logx.Int("msg", r.MessageID))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("sanitation pass complete", logx.Int("removed", removed))
	}
}
