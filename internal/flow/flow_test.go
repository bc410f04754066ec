package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nagbot/internal/picker"
	"nagbot/internal/session"
	"nagbot/internal/storage"
	"nagbot/internal/timeout"
	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

// ---- fakes ----

type editCall struct {
	ref     transport.MessageRef
	text    string
	caption bool
	opt     *transport.SendOptions
}

type answerCall struct {
	text  string
	alert bool
}

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int

	sent    []transport.MessageRef
	sentTxt []string
	edits   []editCall
	markups []transport.MessageRef
	deleted []transport.MessageRef
	copied  []transport.MessageRef
	answers []answerCall

	failSend   bool
	failEdit   bool
	failMarkup bool
}

func newFakeMessenger() *fakeMessenger { return &fakeMessenger{nextID: 1000} }

func (m *fakeMessenger) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return transport.MessageRef{}, errors.New("send failed")
	}
	m.nextID++
	ref := transport.MessageRef{ChatID: to.ChatID, MessageID: m.nextID}
	m.sent = append(m.sent, ref)
	m.sentTxt = append(m.sentTxt, text)
	return ref, nil
}

func (m *fakeMessenger) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEdit {
		return errors.New("edit failed")
	}
	m.edits = append(m.edits, editCall{ref: ref, text: text, opt: opt})
	return nil
}

func (m *fakeMessenger) EditCaption(ctx context.Context, ref transport.MessageRef, caption string, opt *transport.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEdit {
		return errors.New("edit failed")
	}
	m.edits = append(m.edits, editCall{ref: ref, text: caption, caption: true, opt: opt})
	return nil
}

func (m *fakeMessenger) EditMarkup(ctx context.Context, ref transport.MessageRef, opt *transport.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkup {
		return errors.New("markup failed")
	}
	m.markups = append(m.markups, ref)
	return nil
}

func (m *fakeMessenger) Delete(ctx context.Context, ref transport.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMessenger) Copy(ctx context.Context, ref transport.MessageRef) (transport.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.copied = append(m.copied, ref)
	return transport.MessageRef{ChatID: ref.ChatID, MessageID: m.nextID}, nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answerCall{text: text, alert: showAlert})
	return nil
}

func (m *fakeMessenger) wasDeleted(ref transport.MessageRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deleted {
		if d == ref {
			return true
		}
	}
	return false
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[int]storage.Reminder
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[int]storage.Reminder{}} }

func (s *fakeStore) Insert(ctx context.Context, r storage.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.MessageID] = r
	return nil
}

func (s *fakeStore) Update(ctx context.Context, messageID int, p storage.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[messageID]
	if !ok {
		return nil
	}
	if p.DueAt != "" {
		r.DueAt = p.DueAt
	}
	if p.NewMessageID != 0 {
		delete(s.rows, messageID)
		r.MessageID = p.NewMessageID
	}
	s.rows[r.MessageID] = r
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, messageID)
	return nil
}

func (s *fakeStore) Count(ctx context.Context, messageID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[messageID]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *fakeStore) List(ctx context.Context) ([]storage.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Reminder, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) get(messageID int) (storage.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[messageID]
	return r, ok
}

// ---- harness ----

var testNow = time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

func newTestFlow(t *testing.T, msgr *fakeMessenger, store *fakeStore) (*Flow, *timeout.Supervisor) {
	t.Helper()
	timeouts := timeout.New()
	t.Cleanup(timeouts.Close)
	f := New(msgr, session.NewStore(), timeouts, store, Config{PickerTimeout: time.Hour}, time.UTC, logx.Nop())
	f.now = func() time.Time { return testNow }
	return f, timeouts
}

func openTestPicker(t *testing.T, f *Flow, msgr *fakeMessenger) transport.MessageRef {
	t.Helper()
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb1", FromID: 7, ChatID: 100, MessageID: 3,
		Data: DataDate, Text: "buy milk",
	})
	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	if len(msgr.sent) == 0 {
		t.Fatal("picker message was not sent")
	}
	return msgr.sent[len(msgr.sent)-1]
}

// ---- messages ----

func TestEchoMessage(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleMessage(context.Background(), &transport.Message{
		ID: 3, ChatID: 100, FromID: 7, Text: "buy milk",
	})

	if len(msgr.copied) != 1 || msgr.copied[0].MessageID != 3 {
		t.Fatalf("copied = %+v, want original message", msgr.copied)
	}
	if len(msgr.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(msgr.edits))
	}
	want := "buy milk ::" + testNow.Format(storage.DateLayout)
	if msgr.edits[0].text != want {
		t.Errorf("echo text = %q, want %q", msgr.edits[0].text, want)
	}
	if msgr.edits[0].opt == nil || len(msgr.edits[0].opt.Buttons) != 1 {
		t.Errorf("echo lacks the task action row")
	}
	if !msgr.wasDeleted(transport.MessageRef{ChatID: 100, MessageID: 3}) {
		t.Error("original message was not deleted")
	}
}

func TestEchoMediaUsesCaption(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleMessage(context.Background(), &transport.Message{
		ID: 4, ChatID: 100, FromID: 7, Caption: "receipt", HasMedia: true,
	})

	if len(msgr.edits) != 1 || !msgr.edits[0].caption {
		t.Fatalf("edits = %+v, want one caption edit", msgr.edits)
	}
	if !strings.HasPrefix(msgr.edits[0].text, "receipt ::") {
		t.Errorf("caption = %q", msgr.edits[0].text)
	}
}

func TestBlankMessageSwallowed(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleMessage(context.Background(), &transport.Message{
		ID: 5, ChatID: 100, FromID: 7, Text: "   ",
	})

	if len(msgr.copied) != 0 {
		t.Error("blank message was echoed")
	}
	if !msgr.wasDeleted(transport.MessageRef{ChatID: 100, MessageID: 5}) {
		t.Error("blank message was not deleted")
	}
}

func TestPromptEchoSwallowed(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleMessage(context.Background(), &transport.Message{
		ID: 6, ChatID: 100, FromID: 7, Text: "fwd: " + promptCalendar,
	})

	if len(msgr.copied) != 0 {
		t.Error("prompt echo was treated as a task")
	}
}

// ---- picker lifecycle ----

func TestOpenPicker(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, timeouts := newTestFlow(t, msgr, newFakeStore())

	ref := openTestPicker(t, f, msgr)

	if msgr.sentTxt[0] != promptCalendar {
		t.Errorf("prompt = %q", msgr.sentTxt[0])
	}
	sess := f.sessions.Get(7)
	if sess.Picker == nil || *sess.Picker != ref {
		t.Fatalf("session picker = %+v, want %+v", sess.Picker, ref)
	}
	if sess.Origin == nil || sess.Origin.MessageID != 3 || sess.Origin.Text != "buy milk" {
		t.Fatalf("session origin = %+v", sess.Origin)
	}
	if !timeouts.Pending(7) {
		t.Error("expiry timer not armed")
	}
}

func TestSecondPickerRetiresFirst(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	first := openTestPicker(t, f, msgr)
	second := openTestPicker(t, f, msgr)

	if first == second {
		t.Fatal("second picker reused the first message")
	}
	if !msgr.wasDeleted(first) {
		t.Error("first picker was not deleted")
	}
	sess := f.sessions.Get(7)
	if sess.Picker == nil || *sess.Picker != second {
		t.Fatalf("session picker = %+v, want %+v", sess.Picker, second)
	}
}

func TestPickerExpiry(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	timeouts := timeout.New()
	defer timeouts.Close()
	f := New(msgr, session.NewStore(), timeouts, store, Config{PickerTimeout: 20 * time.Millisecond}, time.UTC, logx.Nop())
	f.now = func() time.Time { return testNow }

	ref := openTestPicker(t, f, msgr)

	// The expiry path clears the session, deletes the widget and posts the
	// notice; wait on the notice since it is the last step.
	deadline := time.After(2 * time.Second)
	for {
		msgr.mu.Lock()
		noticed := len(msgr.sentTxt) > 0 && msgr.sentTxt[len(msgr.sentTxt)-1] == noticeTimeout
		msgr.mu.Unlock()
		if noticed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout notice never sent")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !f.sessions.Get(7).Empty() {
		t.Error("session not cleared by expiry")
	}
	if !msgr.wasDeleted(ref) {
		t.Error("expired picker was not deleted")
	}
}

// ---- calendar callbacks ----

func TestCalendarNavigation(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, timeouts := newTestFlow(t, msgr, newFakeStore())

	ref := openTestPicker(t, f, msgr)

	cur := picker.CursorAt(testNow)
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: picker.Encode(picker.ActionNextMonth, cur),
	})

	if len(msgr.markups) != 1 || msgr.markups[0] != ref {
		t.Fatalf("markups = %+v, want one edit on the picker", msgr.markups)
	}
	// Navigation must not finish the interaction.
	if f.sessions.Get(7).Empty() {
		t.Error("session cleared by navigation")
	}
	if !timeouts.Pending(7) {
		t.Error("timer dropped by navigation")
	}
}

func TestCalendarNavigationEditFailureAlerts(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	msgr.failMarkup = true
	f, _ := newTestFlow(t, msgr, newFakeStore())

	ref := openTestPicker(t, f, msgr)
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: picker.Encode(picker.ActionNextHour, picker.CursorAt(testNow)),
	})

	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	found := false
	for _, a := range msgr.answers {
		if a.alert && a.text == noticeEditRetry {
			found = true
		}
	}
	if !found {
		t.Error("edit failure did not surface an alert")
	}
}

func TestMalformedCalendarPayloadIgnored(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	ref := openTestPicker(t, f, msgr)
	before := f.sessions.Get(7)

	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: "calendar;DAY;not;a;number;at;all",
	})

	after := f.sessions.Get(7)
	if *before.Picker != *after.Picker {
		t.Error("malformed payload changed the session")
	}
	if len(msgr.markups) != 0 && len(msgr.edits) != 0 {
		t.Error("malformed payload caused edits")
	}
}

func TestCommitDate(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, timeouts := newTestFlow(t, msgr, store)

	ref := openTestPicker(t, f, msgr)

	chosen := picker.Cursor{Year: 2026, Month: 9, Day: 1, Hour: 9, Minute: 0}
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: picker.Encode(picker.ActionDay, chosen),
	})

	if !f.sessions.Get(7).Empty() {
		t.Error("session not cleared by commit")
	}
	if timeouts.Pending(7) {
		t.Error("timer not disarmed by commit")
	}
	if !msgr.wasDeleted(ref) {
		t.Error("picker message not deleted")
	}

	if len(msgr.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(msgr.edits))
	}
	edit := msgr.edits[0]
	if edit.ref.MessageID != 3 {
		t.Errorf("edited message %d, want origin 3", edit.ref.MessageID)
	}
	if edit.text != "buy milk ::01-09-2026 09:00" {
		t.Errorf("origin text = %q", edit.text)
	}

	r, ok := store.get(3)
	if !ok {
		t.Fatal("reminder not stored")
	}
	if r.ChatID != 100 || r.Message != "buy milk" || r.DueAt != "01-09-2026 09:00" {
		t.Errorf("reminder = %+v", r)
	}
	if r.CreatedAt != testNow.Format(storage.DateLayout) {
		t.Errorf("created_at = %q", r.CreatedAt)
	}
}

func TestCommitDateUpdatesExisting(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, _ := newTestFlow(t, msgr, store)

	_ = store.Insert(context.Background(), storage.Reminder{
		ChatID: 100, MessageID: 3, Message: "buy milk", DueAt: "28-08-2026 10:00", CreatedAt: "27-08-2026 09:00",
	})

	ref := openTestPicker(t, f, msgr)
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: picker.Encode(picker.ActionDay, picker.Cursor{Year: 2026, Month: 9, Day: 2, Hour: 8, Minute: 30}),
	})

	r, ok := store.get(3)
	if !ok {
		t.Fatal("reminder lost")
	}
	if r.DueAt != "02-09-2026 08:30" {
		t.Errorf("due = %q", r.DueAt)
	}
	// An update keeps the original creation stamp.
	if r.CreatedAt != "27-08-2026 09:00" {
		t.Errorf("created_at = %q", r.CreatedAt)
	}
}

func TestCancelPickerDeletesReminder(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, timeouts := newTestFlow(t, msgr, store)

	_ = store.Insert(context.Background(), storage.Reminder{ChatID: 100, MessageID: 3, DueAt: "28-08-2026 11:00"})

	ref := openTestPicker(t, f, msgr)
	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID,
		Data: picker.Encode(picker.ActionCancel, picker.CursorAt(testNow)),
	})

	// The reminder of the ORIGIN message goes away, not one keyed by the
	// picker widget's own id.
	if _, ok := store.get(3); ok {
		t.Error("origin reminder survived cancel")
	}
	if !f.sessions.Get(7).Empty() {
		t.Error("session not cleared")
	}
	if timeouts.Pending(7) {
		t.Error("timer not disarmed")
	}
	if !msgr.wasDeleted(ref) {
		t.Error("picker not deleted")
	}

	msgr.mu.Lock()
	last := msgr.sentTxt[len(msgr.sentTxt)-1]
	msgr.mu.Unlock()
	if last != noticeCancelled {
		t.Errorf("cancel notice = %q", last)
	}
}

func TestStaleCalendarPressAfterCommit(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, _ := newTestFlow(t, msgr, store)

	ref := openTestPicker(t, f, msgr)
	day := picker.Encode(picker.ActionDay, picker.Cursor{Year: 2026, Month: 9, Day: 1, Hour: 9, Minute: 0})
	cb := &transport.Callback{ID: "cb2", FromID: 7, ChatID: 100, MessageID: ref.MessageID, Data: day}

	f.HandleCallback(context.Background(), cb)
	edits := len(msgr.edits)

	// A double-tap on the dead widget must not commit twice.
	f.HandleCallback(context.Background(), cb)
	if len(msgr.edits) != edits {
		t.Error("stale press edited the origin again")
	}
}

// ---- task actions ----

func TestDoneTogglesAndDeletesReminder(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, _ := newTestFlow(t, msgr, store)

	_ = store.Insert(context.Background(), storage.Reminder{ChatID: 100, MessageID: 9, DueAt: "29-08-2026 09:00"})

	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb", FromID: 7, ChatID: 100, MessageID: 9,
		Data: DataDone, Text: "buy milk ::29-08-2026 09:00",
	})

	if len(msgr.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(msgr.edits))
	}
	if msgr.edits[0].text != "✅ buy milk ::29-08-2026 09:00" {
		t.Errorf("done text = %q", msgr.edits[0].text)
	}
	if _, ok := store.get(9); ok {
		t.Error("reminder survived done")
	}
}

func TestDoneIdempotent(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb", FromID: 7, ChatID: 100, MessageID: 9,
		Data: DataDone, Text: "✅ buy milk",
	})

	if len(msgr.edits) != 0 {
		t.Errorf("already-done task was edited: %+v", msgr.edits)
	}
}

func TestUndone(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	f, _ := newTestFlow(t, msgr, newFakeStore())

	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb", FromID: 7, ChatID: 100, MessageID: 9,
		Data: DataUndone, Text: "✅ buy milk",
	})

	if len(msgr.edits) != 1 || msgr.edits[0].text != "buy milk" {
		t.Fatalf("edits = %+v, want plain text restore", msgr.edits)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	store := newFakeStore()
	f, _ := newTestFlow(t, msgr, store)

	_ = store.Insert(context.Background(), storage.Reminder{ChatID: 100, MessageID: 9, DueAt: "29-08-2026 09:00"})

	f.HandleCallback(context.Background(), &transport.Callback{
		ID: "cb", FromID: 7, ChatID: 100, MessageID: 9, Data: DataDelete,
	})

	if _, ok := store.get(9); ok {
		t.Error("reminder survived delete")
	}
	if !msgr.wasDeleted(transport.MessageRef{ChatID: 100, MessageID: 9}) {
		t.Error("task message not deleted")
	}
}

// ---- markup helpers ----

func TestMarkHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"done plain", markDone, "buy milk", "✅ buy milk"},
		{"done already marked", markDone, "✅ buy milk", "✅ buy milk"},
		{"done empty", markDone, "", "✅"},
		{"undone marked", markUndone, "✅ buy milk", "buy milk"},
		{"undone plain", markUndone, "buy milk", "buy milk"},
		{"undone legacy del wrapper", markUndone, "<del>buy milk</del>", "buy milk"},
		{"base strips suffix", baseText, "buy milk ::29-08-2026 09:00", "buy milk"},
		{"base without suffix", baseText, "buy milk", "buy milk"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.fn(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
