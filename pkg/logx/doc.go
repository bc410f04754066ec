// Package logx wraps zerolog behind a small Field-based API and a Service
// that can swap sinks (console, file, Telegram) at runtime without
// invalidating loggers handed out earlier.
package logx
