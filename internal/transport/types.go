package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	Caption      string
	// HasMedia is true for messages whose payload is an attachment
	// (photo/video/document/...). Their user-visible text lives in Caption.
	HasMedia  bool
	IsCommand bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
	// Text/Caption mirror the message the pressed button was attached to.
	Text     string
	Caption  string
	HasMedia bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is a platform-neutral inline button. Data is raw callback payload;
// the adapter maps rows of buttons onto platform markup.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Buttons        [][]Button
	// RemoveKeyboard asks the platform to drop any persistent reply keyboard.
	RemoveKeyboard bool
}

// Messenger is the outbound capability consumed by the core flows.
// Every call may fail with a transport error; callers decide whether the
// failure is best-effort (log and continue) or flow-critical.
type Messenger interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, opt *SendOptions) error
	EditMarkup(ctx context.Context, ref MessageRef, opt *SendOptions) error
	Delete(ctx context.Context, ref MessageRef) error
	// Copy re-posts the referenced message in the same chat and returns the
	// fresh message's ref. The original is left untouched.
	Copy(ctx context.Context, ref MessageRef) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string, showAlert bool) error
}

// Adapter is a Messenger bound to a long-poll update source.
type Adapter interface {
	Messenger

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
