package pipeline

import (
	"context"
	"log/slog"

	"github.com/cl33/RealTimeTTS/internal/eventstore"
	"github.com/cl33/RealTimeTTS/internal/protocol"
)

// EventSink receives turn timeline events. Implementations must not block
// the turn for long and must never fail it.
type EventSink interface {
	Record(ctx context.Context, evt protocol.TurnEvent)
}

// Publisher is the part of the bus client used for turn events.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Recorder fans turn events out to the bus and the event store. Either may
// be nil.
type Recorder struct {
	pub    Publisher
	store  *eventstore.Store
	logger *slog.Logger
}

func NewRecorder(pub Publisher, store *eventstore.Store, logger *slog.Logger) *Recorder {
	return &Recorder{pub: pub, store: store, logger: logger.With(slog.String("component", "turn-events"))}
}

func (r *Recorder) Record(ctx context.Context, evt protocol.TurnEvent) {
	if r.pub != nil {
		if err := r.pub.PublishJSON(protocol.SubjectTurnEventPrefix+"."+evt.Type, evt); err != nil {
			r.logger.Warn("failed to publish turn event", slog.String("type", evt.Type), slogError(err))
		}
	}
	if r.store != nil {
		err := r.store.Append(ctx, eventstore.Event{
			TurnID:    evt.TurnID,
			Type:      evt.Type,
			Segments:  evt.Segments,
			Error:     evt.Error,
			LatencyMS: evt.LatencyMS,
			CreatedAt: evt.Timestamp,
		})
		if err != nil {
			r.logger.Warn("failed to record turn event", slog.String("type", evt.Type), slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
