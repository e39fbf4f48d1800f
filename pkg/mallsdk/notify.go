package mallsdk

import (
	"context"
	"log/slog"
)

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a transient message for the user.
type Notification struct {
	Level   Level
	Message string
	Class   Classification
}

// Notifier shows notifications. Implementations must not block the caller.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// NopNotifier drops every notification.
var NopNotifier Notifier = NotifierFunc(func(Notification) {})

// LogNotifier writes notifications to a structured logger. It is the
// default for headless callers such as the CLI.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(note Notification) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	switch note.Level {
	case LevelError:
		level = slog.LevelError
	case LevelWarning:
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, note.Message, "class", note.Class.String())
}
