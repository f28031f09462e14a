package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
)

// HandleMessage returns a kafka.MessageHandler that applies TermEvents to
// svc. Undecodable and invalid events are logged and committed so one bad
// message cannot stall the partition. m may be nil.
func HandleMessage(svc *service.Service, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "term-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[TermEvent](value)
		if err != nil {
			logger.Error("failed to decode term event",
				"error", err,
				"key", string(key),
			)
			count(m, "unknown", "decode_error")
			return nil
		}

		err = apply(ctx, svc, ev)
		switch {
		case err == nil:
			count(m, string(ev.Type), "applied")
			logger.Debug("term event applied", "type", ev.Type, "term", ev.Name)
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput),
			errors.Is(err, apperrors.ErrTermNotFound),
			errors.Is(err, apperrors.ErrPageNotFound):
			count(m, string(ev.Type), "skipped")
			logger.Warn("term event skipped",
				"type", ev.Type,
				"term", ev.Name,
				"reason", err,
			)
			return nil
		default:
			count(m, string(ev.Type), "error")
			return fmt.Errorf("applying %s for %q: %w", ev.Type, ev.Name, err)
		}
	}
}

func apply(ctx context.Context, svc *service.Service, ev TermEvent) error {
	switch ev.Type {
	case TermAdded:
		pages := make([]int, len(ev.Pages))
		for i, p := range ev.Pages {
			pages[i] = int(p)
		}
		return svc.Add(ctx, ev.Name, pages...)
	case TermRemoved:
		return svc.Remove(ctx, ev.Name)
	case PageRemoved:
		_, err := svc.RemovePage(ctx, ev.Name, int(ev.Page))
		return err
	case TermRenamed:
		_, _, err := svc.Rename(ctx, ev.Name, ev.NewName)
		return err
	default:
		return apperrors.Invalid("unknown event type %q", ev.Type)
	}
}

func count(m *metrics.Metrics, typ, status string) {
	if m == nil {
		return
	}
	m.EventsConsumedTotal.WithLabelValues(typ, status).Inc()
}
