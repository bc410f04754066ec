package flow

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"nagbot/internal/picker"
	"nagbot/internal/session"
	"nagbot/internal/storage"
	"nagbot/internal/timeout"
	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

type Config struct {
	// PickerTimeout is the window a user has to finish the calendar before it
	// auto-closes. Counted from picker open; navigation does not extend it.
	PickerTimeout time.Duration
}

// Flow drives the date-picking state machine: it decodes button presses via
// the picker package, keeps per-user state in the session store, owns the
// picker auto-expiry timers and writes committed dates through to storage.
type Flow struct {
	msgr     transport.Messenger
	sessions *session.Store
	timeouts *timeout.Supervisor
	store    storage.Store
	log      logx.Logger
	cfg      Config
	loc      *time.Location

	now func() time.Time
}

func New(msgr transport.Messenger, sessions *session.Store, timeouts *timeout.Supervisor, store storage.Store, cfg Config, loc *time.Location, log logx.Logger) *Flow {
	if cfg.PickerTimeout <= 0 {
		cfg.PickerTimeout = 30 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	f := &Flow{
		msgr:     msgr,
		sessions: sessions,
		timeouts: timeouts,
		store:    store,
		log:      log,
		cfg:      cfg,
		loc:      loc,
	}
	f.now = func() time.Time { return time.Now().In(loc) }
	return f
}

// ---- Incoming messages ----

// HandleMessage turns a plain user message into a tracked task message.
// Blank input and stray echoes of the calendar prompt are swallowed.
func (f *Flow) HandleMessage(ctx context.Context, m *transport.Message) {
	if m.IsCommand {
		return
	}
	if !m.HasMedia && (strings.TrimSpace(m.Text) == "" || strings.Contains(m.Text, promptCalendar)) {
		f.deleteBestEffort(ctx, transport.MessageRef{ChatID: m.ChatID, MessageID: m.ID})
		f.retirePicker(ctx, m.FromID)
		return
	}
	f.echo(ctx, m)
}

// echo re-posts the user's message as a bot-owned task message carrying the
// " ::<now>" suffix and the task action row, then removes the original.
func (f *Flow) echo(ctx context.Context, m *transport.Message) {
	f.retirePicker(ctx, m.FromID)

	src := transport.MessageRef{ChatID: m.ChatID, MessageID: m.ID}
	ref, err := f.msgr.Copy(ctx, src)
	if err != nil {
		f.log.Error("task echo failed", logx.Err(err), logx.Int64("chat", m.ChatID), logx.Int("msg", m.ID))
		return
	}

	suffix := dateMarker + f.now().Format(storage.DateLayout)
	opt := &transport.SendOptions{Buttons: TaskButtons(false)}
	if m.HasMedia {
		err = f.msgr.EditCaption(ctx, ref, m.Caption+suffix, opt)
	} else {
		err = f.msgr.EditText(ctx, ref, m.Text+suffix, opt)
	}
	if err != nil {
		f.log.Warn("task suffix edit failed", logx.Err(err), logx.Int("msg", ref.MessageID))
	}

	f.deleteBestEffort(ctx, src)
}

// ---- Incoming callbacks ----

func (f *Flow) HandleCallback(ctx context.Context, cb *transport.Callback) {
	if picker.IsCalendarPayload(cb.Data) {
		f.handleCalendar(ctx, cb)
		return
	}
	// A press on the active picker message that doesn't decode as a calendar
	// payload is stale UI; answer it and move on.
	if sess := f.sessions.Get(cb.FromID); sess.Picker != nil && sess.Picker.MessageID == cb.MessageID {
		f.answer(ctx, cb.ID, "", false)
		return
	}

	switch cb.Data {
	case DataDate:
		f.openPicker(ctx, cb)
	case DataDelete:
		f.deleteTask(ctx, cb)
	case DataDone:
		f.toggleDone(ctx, cb, true)
	case DataUndone:
		f.toggleDone(ctx, cb, false)
	default:
		f.log.Debug("unknown callback payload", logx.String("data", cb.Data))
		f.answer(ctx, cb.ID, "", false)
	}
}

func (f *Flow) deleteTask(ctx context.Context, cb *transport.Callback) {
	if err := f.store.Delete(ctx, cb.MessageID); err != nil {
		f.log.Warn("reminder delete failed", logx.Err(err), logx.Int("msg", cb.MessageID))
	}
	f.deleteBestEffort(ctx, transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID})
	f.answer(ctx, cb.ID, "", false)
}

func (f *Flow) toggleDone(ctx context.Context, cb *transport.Callback, done bool) {
	source := cb.Text
	if source == "" {
		source = cb.Caption
	}
	source = strings.ReplaceAll(source, "~~", "")

	var text string
	if done {
		text = markDone(source)
		// A completed task has no pending due date.
		if err := f.store.Delete(ctx, cb.MessageID); err != nil {
			f.log.Warn("reminder delete failed", logx.Err(err), logx.Int("msg", cb.MessageID))
		}
	} else {
		text = markUndone(source)
	}

	// Identical content would be rejected by the transport; skip the round trip.
	if text != source {
		ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
		opt := &transport.SendOptions{Buttons: TaskButtons(done)}
		var err error
		if cb.HasMedia {
			err = f.msgr.EditCaption(ctx, ref, text, opt)
		} else {
			err = f.msgr.EditText(ctx, ref, text, opt)
		}
		if err != nil {
			f.log.Warn("task toggle edit failed", logx.Err(err), logx.Int("msg", cb.MessageID))
		}
	}
	f.answer(ctx, cb.ID, "", false)
}

// ---- Picker lifecycle ----

// openPicker retires any picker the user already has and opens a fresh one
// anchored at the current time. The 30s expiry clock starts here.
func (f *Flow) openPicker(ctx context.Context, cb *transport.Callback) {
	userID := cb.FromID
	f.retirePicker(ctx, userID)

	cur := picker.CursorAt(f.now())
	opt := &transport.SendOptions{Buttons: picker.Render(cur)}

	// Sending the picker is flow-critical: retry briefly before giving up.
	var ref transport.MessageRef
	err := retry.Do(ctx, retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond)), func(ctx context.Context) error {
		var err error
		ref, err = f.msgr.SendText(ctx, transport.ChatTarget{ChatID: cb.ChatID}, promptCalendar, opt)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		f.log.Error("picker send failed", logx.Err(err), logx.Int64("chat", cb.ChatID))
		f.answer(ctx, cb.ID, noticeEditRetry, true)
		return
	}

	f.sessions.Set(userID, session.Session{
		ChatID: cb.ChatID,
		Picker: &ref,
		Origin: &session.Origin{
			MessageID: cb.MessageID,
			Text:      cb.Text,
			Caption:   cb.Caption,
			HasMedia:  cb.HasMedia,
		},
	})
	f.timeouts.Arm(userID, f.cfg.PickerTimeout, func() { f.expirePicker(userID, ref) })
	f.answer(ctx, cb.ID, "", false)
}

// expirePicker runs when the 30s window elapses. The session guard drops
// stale fires racing a newer picker or an already-finished interaction.
func (f *Flow) expirePicker(userID int64, ref transport.MessageRef) {
	expired := false
	f.sessions.Update(userID, func(s *session.Session) {
		if s.Picker == nil || s.Picker.MessageID != ref.MessageID {
			return
		}
		*s = session.Session{}
		expired = true
	})
	if !expired {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f.deleteBestEffort(ctx, ref)
	if _, err := f.msgr.SendText(ctx, transport.ChatTarget{ChatID: ref.ChatID}, noticeTimeout, nil); err != nil {
		f.log.Warn("timeout notice failed", logx.Err(err), logx.Int64("chat", ref.ChatID))
	}
	f.log.Info("picker expired", logx.Int64("user", userID), logx.Int("msg", ref.MessageID))
}

func (f *Flow) handleCalendar(ctx context.Context, cb *transport.Callback) {
	action, cur, err := picker.Decode(cb.Data)
	if err != nil {
		// Malformed payloads are dropped: acknowledge, change nothing.
		f.log.Debug("malformed calendar payload", logx.Err(err), logx.String("data", cb.Data))
		f.answer(ctx, cb.ID, "", false)
		return
	}

	switch action {
	case picker.ActionIgnore:
		f.answer(ctx, cb.ID, "", false)
	case picker.ActionDay:
		f.answer(ctx, cb.ID, "", false)
		f.commitDate(ctx, cb, cur)
	case picker.ActionCancel:
		f.answer(ctx, cb.ID, "", false)
		f.cancelPicker(ctx, cb)
	default:
		f.answer(ctx, cb.ID, "", false)
		next := picker.Advance(cur, action)
		ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
		if err := f.msgr.EditMarkup(ctx, ref, &transport.SendOptions{Buttons: picker.Render(next)}); err != nil {
			f.log.Warn("calendar re-render failed", logx.Err(err), logx.Int("msg", cb.MessageID))
			f.answer(ctx, cb.ID, noticeEditRetry, true)
		}
	}
}

// popSession atomically takes the session if cb targets the active picker.
func (f *Flow) popSession(cb *transport.Callback) (session.Session, bool) {
	var sess session.Session
	ok := false
	f.sessions.Update(cb.FromID, func(s *session.Session) {
		if s.Picker == nil || s.Picker.MessageID != cb.MessageID {
			return
		}
		sess = *s
		*s = session.Session{}
		ok = true
	})
	return sess, ok
}

// commitDate finishes the interaction for a DAY press: it rewrites the origin
// message's date suffix and upserts the reminder record.
func (f *Flow) commitDate(ctx context.Context, cb *transport.Callback, cur picker.Cursor) {
	userID := cb.FromID
	f.timeouts.Disarm(userID)

	sess, ok := f.popSession(cb)
	if !ok || sess.Origin == nil {
		// Stale picker (restart, double-tap); drop the orphaned widget.
		f.deleteBestEffort(ctx, transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID})
		return
	}
	f.deleteBestEffort(ctx, *sess.Picker)

	origin := sess.Origin
	when := cur.Time(f.loc)
	due := when.Format(storage.DateLayout)

	source := origin.Text
	if origin.HasMedia {
		source = origin.Caption
	}
	base := baseText(source)
	text := base + dateMarker + due

	if text != source {
		ref := transport.MessageRef{ChatID: sess.ChatID, MessageID: origin.MessageID}
		opt := &transport.SendOptions{Buttons: TaskButtons(false)}
		// The commit edit is flow-critical: without it the user has no visible
		// confirmation of the chosen date.
		err := retry.Do(ctx, retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond)), func(ctx context.Context) error {
			var err error
			if origin.HasMedia {
				err = f.msgr.EditCaption(ctx, ref, text, opt)
			} else {
				err = f.msgr.EditText(ctx, ref, text, opt)
			}
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			f.log.Error("origin commit edit failed", logx.Err(err), logx.Int("msg", origin.MessageID))
		}
	}

	n, err := f.store.Count(ctx, origin.MessageID)
	if err != nil {
		f.log.Warn("reminder count failed", logx.Err(err), logx.Int("msg", origin.MessageID))
	}
	if n == 0 {
		err = f.store.Insert(ctx, storage.Reminder{
			ChatID:    sess.ChatID,
			MessageID: origin.MessageID,
			Message:   base,
			Caption:   origin.Caption,
			DueAt:     due,
			CreatedAt: f.now().Format(storage.DateLayout),
		})
	} else {
		err = f.store.Update(ctx, origin.MessageID, storage.Patch{DueAt: due})
	}
	if err != nil {
		f.log.Warn("reminder upsert failed", logx.Err(err), logx.Int("msg", origin.MessageID))
	}
	f.log.Info("date committed", logx.Int64("user", userID), logx.Int("msg", origin.MessageID), logx.String("due", due))
}

// cancelPicker aborts the interaction and removes any reminder the origin
// message already had.
func (f *Flow) cancelPicker(ctx context.Context, cb *transport.Callback) {
	userID := cb.FromID
	f.timeouts.Disarm(userID)

	sess, ok := f.popSession(cb)
	if !ok {
		f.deleteBestEffort(ctx, transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID})
		return
	}
	f.deleteBestEffort(ctx, *sess.Picker)

	if sess.Origin != nil {
		if err := f.store.Delete(ctx, sess.Origin.MessageID); err != nil {
			f.log.Warn("reminder delete failed", logx.Err(err), logx.Int("msg", sess.Origin.MessageID))
		}
	}
	if _, err := f.msgr.SendText(ctx, transport.ChatTarget{ChatID: cb.ChatID}, noticeCancelled, nil); err != nil {
		f.log.Warn("cancel notice failed", logx.Err(err), logx.Int64("chat", cb.ChatID))
	}
}

// retirePicker closes whatever picker the user has open: cancels the timer,
// drops the session and removes the widget message.
func (f *Flow) retirePicker(ctx context.Context, userID int64) {
	var old *transport.MessageRef
	f.sessions.Update(userID, func(s *session.Session) {
		old = s.Picker
		*s = session.Session{}
	})
	f.timeouts.Disarm(userID)
	if old != nil {
		f.deleteBestEffort(ctx, *old)
	}
}

// ---- Helpers ----

func (f *Flow) deleteBestEffort(ctx context.Context, ref transport.MessageRef) {
	if err := f.msgr.Delete(ctx, ref); err != nil {
		f.log.Warn("message delete failed", logx.Err(err), logx.Int64("chat", ref.ChatID), logx.Int("msg", ref.MessageID))
	}
}

func (f *Flow) answer(ctx context.Context, callbackID, text string, alert bool) {
	if callbackID == "" {
		return
	}
	if err := f.msgr.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		f.log.Debug("callback answer failed", logx.Err(err))
	}
}
