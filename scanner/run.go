package scanner

import (
	"context"
	"errors"
	"io"

	"github.com/vitwit/scanpay/logger"
)

// Handler processes one scanned payload.
type Handler func(ctx context.Context, payload string) error

// Run pulls payloads from src until it is exhausted or ctx is done. Each
// payload is recorded in history (when non-nil) before it is handled.
// Handler and source read errors are logged and scanning continues.
func Run(ctx context.Context, src Source, history *History, handle Handler, log logger.Logger) error {
	log = logger.OrNoop(log)

	for {
		payload, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Warn("scan failed", map[string]any{"error": err})
			continue
		}

		if history != nil {
			history.Add(payload)
		}

		if err := handle(ctx, payload); err != nil {
			log.Warn("scanned payload not processed", map[string]any{"error": err})
		}
	}
}
