package flow

import (
	"context"

	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

// Start greets the user and clears any reply keyboard left over from older
// bot builds.
func (f *Flow) Start(ctx context.Context, m *transport.Message) {
	opt := &transport.SendOptions{ParseMode: "MarkdownV2", RemoveKeyboard: true}
	if _, err := f.msgr.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, textStart, opt); err != nil {
		f.log.Warn("start reply failed", logx.Err(err), logx.Int64("chat", m.ChatID))
	}
}

// Stop removes the chat keyboard. Telegram only drops a keyboard via a new
// message carrying the removal flag, so we send one and delete it right away.
func (f *Flow) Stop(ctx context.Context, m *transport.Message) {
	opt := &transport.SendOptions{ParseMode: "MarkdownV2", RemoveKeyboard: true}
	ref, err := f.msgr.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, textStart, opt)
	if err != nil {
		f.log.Warn("stop reply failed", logx.Err(err), logx.Int64("chat", m.ChatID))
		return
	}
	f.deleteBestEffort(ctx, ref)
	f.retirePicker(ctx, m.FromID)
}

// Help prints a short usage hint.
func (f *Flow) Help(ctx context.Context, m *transport.Message) {
	if _, err := f.msgr.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, textHelp, nil); err != nil {
		f.log.Warn("help reply failed", logx.Err(err), logx.Int64("chat", m.ChatID))
	}
}
