// Package duesched polls the reminder store and fires due reminders by
// re-posting the tracked task message.
package duesched

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"nagbot/internal/flow"
	"nagbot/internal/storage"
	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration

	// TriggerWindow bounds how far past its due time a reminder may still
	// fire. Older misses wait for the retrigger bump instead.
	TriggerWindow time.Duration

	// RetriggerAfter is how far a fired reminder is pushed into the future.
	RetriggerAfter time.Duration

	// RetryBackoff is the bump applied when firing fails.
	RetryBackoff time.Duration

	// StaleAfter is the age past due at which a reminder is dropped outright.
	StaleAfter time.Duration
}

func (c *Config) normalize() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.TriggerWindow <= 0 {
		c.TriggerWindow = 59 * time.Second
	}
	if c.RetriggerAfter <= 0 {
		c.RetriggerAfter = 10 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
}

type Scheduler struct {
	store storage.Store
	msgr  transport.Messenger
	log   logx.Logger
	cfg   Config
	loc   *time.Location

	now func() time.Time
}

func New(store storage.Store, msgr transport.Messenger, cfg Config, loc *time.Location, log logx.Logger) *Scheduler {
	cfg.normalize()
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		store: store,
		msgr:  msgr,
		log:   log,
		cfg:   cfg,
		loc:   loc,
	}
	s.now = func() time.Time { return time.Now().In(loc) }
	return s
}

// Run polls until ctx is cancelled. The first pass is delayed so startup
// (adapter connect, migrations) settles before reminders start moving.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.InitialDelay):
	}

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		s.tick(ctx, s.now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// tick walks all stored reminders once. A failure on one record never blocks
// the rest of the pass.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panicked", logx.Any("panic", r))
		}
	}()

	list, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("reminder list failed", logx.Err(err))
		return
	}

	for i := range list {
		r := list[i]
		if r.ChatID == 0 || r.MessageID == 0 || r.DueAt == "" {
			s.log.Warn("skipping corrupt reminder record",
				logx.Int64("chat", r.ChatID), logx.Int("msg", r.MessageID))
			continue
		}
		due, err := time.ParseInLocation(storage.DateLayout, r.DueAt, s.loc)
		if err != nil {
			s.log.Warn("skipping reminder with unparseable due date",
				logx.Int("msg", r.MessageID), logx.String("due", r.DueAt), logx.Err(err))
			continue
		}

		switch {
		case !due.After(now) && now.Sub(due) <= s.cfg.TriggerWindow:
			s.fire(ctx, r, now)
		case due.Before(now.Add(-s.cfg.StaleAfter)):
			// Long-missed reminders (bot was down for a day or more) are
			// dropped rather than replayed.
			if err := s.store.Delete(ctx, r.MessageID); err != nil {
				s.log.Warn("stale reminder delete failed", logx.Err(err), logx.Int("msg", r.MessageID))
			} else {
				s.log.Info("stale reminder dropped", logx.Int("msg", r.MessageID), logx.String("due", r.DueAt))
			}
		}
	}
}

// fire re-posts the task message to the top of the chat: copy, re-attach the
// action row, drop the old copy, then push the due time forward keyed to the
// new message id. On failure the record keeps its id and retries shortly.
func (s *Scheduler) fire(ctx context.Context, r storage.Reminder, now time.Time) {
	old := transport.MessageRef{ChatID: r.ChatID, MessageID: r.MessageID}

	var fresh transport.MessageRef
	err := retry.Do(ctx, retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond)), func(ctx context.Context) error {
		var err error
		fresh, err = s.msgr.Copy(ctx, old)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("reminder fire failed", logx.Err(err), logx.Int("msg", r.MessageID))
		patch := storage.Patch{DueAt: now.Add(s.cfg.RetryBackoff).Format(storage.DateLayout)}
		if uerr := s.store.Update(ctx, r.MessageID, patch); uerr != nil {
			s.log.Error("reminder backoff update failed", logx.Err(uerr), logx.Int("msg", r.MessageID))
		}
		return
	}

	if err := s.msgr.EditMarkup(ctx, fresh, &transport.SendOptions{Buttons: flow.TaskButtons(false)}); err != nil {
		// A copy without its action row is useless; drop it and retry the
		// whole trigger shortly, with the original message left in place.
		s.log.Warn("action row attach failed", logx.Err(err), logx.Int("msg", fresh.MessageID))
		if derr := s.msgr.Delete(ctx, fresh); derr != nil {
			s.log.Warn("orphaned copy delete failed", logx.Err(derr), logx.Int("msg", fresh.MessageID))
		}
		patch := storage.Patch{DueAt: now.Add(s.cfg.RetryBackoff).Format(storage.DateLayout)}
		if uerr := s.store.Update(ctx, r.MessageID, patch); uerr != nil {
			s.log.Error("reminder backoff update failed", logx.Err(uerr), logx.Int("msg", r.MessageID))
		}
		return
	}
	if err := s.msgr.Delete(ctx, old); err != nil {
		s.log.Warn("old task delete failed", logx.Err(err), logx.Int("msg", r.MessageID))
	}

	patch := storage.Patch{
		NewMessageID: fresh.MessageID,
		DueAt:        now.Add(s.cfg.RetriggerAfter).Format(storage.DateLayout),
	}
	if err := s.store.Update(ctx, r.MessageID, patch); err != nil {
		s.log.Error("reminder re-key failed", logx.Err(err), logx.Int("msg", r.MessageID), logx.Int("new", fresh.MessageID))
		return
	}
	s.log.Info("reminder fired", logx.Int64("chat", r.ChatID), logx.Int("msg", r.MessageID), logx.Int("new", fresh.MessageID))
}
