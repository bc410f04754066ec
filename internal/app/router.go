package app

import (
	"context"
	"runtime/debug"
	"strings"

	"nagbot/internal/transport"
	logx "nagbot/pkg/logx"
)

// route dispatches one update. Panics are contained per update so a single
// malformed interaction cannot take down the poll loop.
func (a *App) route(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("update handler panicked",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil {
			return
		}
		if up.Message.IsCommand {
			a.routeCommand(ctx, up.Message)
			return
		}
		a.flow.HandleMessage(ctx, up.Message)
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		a.flow.HandleCallback(ctx, up.Callback)
	}
}

func (a *App) routeCommand(ctx context.Context, m *transport.Message) {
	cmd := strings.ToLower(strings.TrimSpace(m.Text))
	// Strip bot-name suffix ("/start@somebot") and arguments.
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		a.flow.Start(ctx, m)
	case "/stop":
		a.flow.Stop(ctx, m)
	case "/help":
		a.flow.Help(ctx, m)
	default:
		a.log.Debug("unknown command", logx.String("cmd", cmd), logx.Int64("chat", m.ChatID))
	}
}
