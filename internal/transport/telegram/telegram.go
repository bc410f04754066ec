package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// mediaEvents covers every attachment kind the bot echoes back as a task.
var mediaEvents = []string{
	tele.OnPhoto, tele.OnVideo, tele.OnAudio, tele.OnDocument,
	tele.OnSticker, tele.OnVoice, tele.OnLocation, tele.OnContact, tele.OnVenue,
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	}()

	onMessage := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := transport.Update{
			Kind: transport.UpdateMessage,
			Message: &transport.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				Caption:      m.Caption,
				HasMedia:     m.Media() != nil,
				IsCommand:    strings.HasPrefix(m.Text, "/"),
			},
		}
		a.push(up)
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	for _, ev := range mediaEvents {
		a.bot.Handle(ev, onMessage)
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		up := transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				Data:      strings.TrimPrefix(cb.Data, "\f"),
				Text:      m.Text,
				Caption:   m.Caption,
				HasMedia:  m.Media() != nil,
			},
		}
		a.push(up)
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) push(up transport.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	chat := &tele.Chat{ID: to.ChatID}
	msg, err := a.bot.Send(chat, text, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	_, err := a.bot.Edit(editable(ref), text, sendOptions(opt))
	return err
}

func (a *Adapter) EditCaption(ctx context.Context, ref transport.MessageRef, caption string, opt *transport.SendOptions) error {
	_, err := a.bot.EditCaption(editable(ref), caption, sendOptions(opt))
	return err
}

func (a *Adapter) EditMarkup(ctx context.Context, ref transport.MessageRef, opt *transport.SendOptions) error {
	var rm *tele.ReplyMarkup
	if o := sendOptions(opt); o != nil {
		rm = o.ReplyMarkup
	}
	_, err := a.bot.EditReplyMarkup(editable(ref), rm)
	return err
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	return a.bot.Delete(editable(ref))
}

func (a *Adapter) Copy(ctx context.Context, ref transport.MessageRef) (transport.MessageRef, error) {
	msg, err := a.bot.Copy(&tele.Chat{ID: ref.ChatID}, editable(ref))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: ref.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, showAlert bool) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: showAlert})
}

func editable(ref transport.MessageRef) tele.Editable {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

// sendOptions converts neutral options into telebot options, including the
// inline keyboard built from Button rows.
func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	out := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if len(opt.Buttons) > 0 {
		rm := &tele.ReplyMarkup{}
		rows := make([]tele.Row, 0, len(opt.Buttons))
		for _, row := range opt.Buttons {
			btns := make([]tele.Btn, 0, len(row))
			for _, b := range row {
				btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
			}
			rows = append(rows, rm.Row(btns...))
		}
		rm.Inline(rows...)
		out.ReplyMarkup = rm
	} else if opt.RemoveKeyboard {
		out.ReplyMarkup = &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	return out
}
