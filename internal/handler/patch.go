package handler

import (
	"bytes"
	"encoding/json"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/service"
)

// optional tells an absent JSON field apart from an explicit null, which
// PUT/PATCH bodies need for nullable columns such as vic_id or assigned_to.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// apply overwrites *dst when the field was present in the body.
func (o optional[T]) apply(dst **T) {
	if o.Set {
		*dst = o.Value
	}
}

// emit publishes ev without blocking the response. The actor is taken from
// the verified claims.
func emit(c echo.Context, p service.EventPublisher, ev queue.DomainEvent) {
	if p == nil {
		return
	}
	if ev.ActorID == 0 {
		if uid, err := getUserID(c); err == nil {
			ev.ActorID = uid
		}
	}
	service.PublishAsync(p, ev)
}

// invalidate drops cached catalog responses after a catalog write. A
// failure only means clients may read stale data until the TTL expires.
func invalidate(c echo.Context, inv middleware.CacheInvalidator) {
	if inv == nil {
		return
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := inv.Invalidate(ctx); err != nil {
		log.Printf("handler: cache invalidate: %v", err)
	}
}
