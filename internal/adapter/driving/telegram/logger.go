package telegrambot

import (
	"fmt"
	"log/slog"
	"strings"
)

// SlogLogger routes the Telegram library's internal logging through slog.
// Install it with tgbotapi.SetLogger.
type SlogLogger struct {
	Logger *slog.Logger
}

// Println implements tgbotapi.BotLogger.
func (l SlogLogger) Println(v ...any) {
	l.log(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Printf implements tgbotapi.BotLogger.
func (l SlogLogger) Printf(format string, v ...any) {
	l.log(fmt.Sprintf(format, v...))
}

func (l SlogLogger) log(msg string) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug(msg, "component", "tgbotapi")
}
