// Package zerolog adapts rs/zerolog to the logger interface.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/fieldsync/fieldsync.go/pkg/logger"
)

type Handler struct {
	logger zerolog.Logger
}

var _ logger.Logger = (*Handler)(nil)

func New(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

func (h *Handler) Debug(msg string, args ...any) {
	h.emit(h.logger.Debug(), msg, args)
}

func (h *Handler) Info(msg string, args ...any) {
	h.emit(h.logger.Info(), msg, args)
}

func (h *Handler) Warn(msg string, args ...any) {
	h.emit(h.logger.Warn(), msg, args)
}

func (h *Handler) Error(msg string, args ...any) {
	h.emit(h.logger.Error(), msg, args)
}

func (h *Handler) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
