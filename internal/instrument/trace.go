package instrument

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// TraceMiddleware assigns every request a trace id, taken from the
// X-Trace-ID header when the client sends a valid UUID. The id is echoed in
// the response and a logger carrying it is stored in the user context, where
// zerolog.Ctx finds it.
func TraceMiddleware(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		c.Set(TraceHeader, traceID)

		reqLog := log.With().Str("trace_id", traceID).Logger()
		ctx := context.WithValue(c.UserContext(), traceKey{}, traceID)
		c.SetUserContext(reqLog.WithContext(ctx))
		return c.Next()
	}
}

// TraceID returns the trace id stored by TraceMiddleware, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
