package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
)

const maxRecordedBody = 2048

type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

// TracerMiddleware opens the request span stack and installs it as "rt".
func TracerMiddleware(art *kernel.AppRuntime) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rt := kernel.InitRequest(art, c)

		rt.Span.SetAttributes(
			attribute.KeyValue("http.method", c.Request.Method),
			attribute.KeyValue("http.url", c.Request.URL.String()),
			attribute.KeyValue("http.host", c.Request.Host),
			attribute.KeyValue("http.request_content_length", c.Request.ContentLength),
		)

		art.Diagnostic.RequestCounter.Add(rt.SpanContext, 1,
			metric.WithAttributes(attribute.KeyValue("http.method", c.Request.Method)),
		)

		w := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Set("rt", rt)

		c.Next()

		rt.SetIndex(0)
		rt.Span.SetAttributes(
			attribute.KeyValue("http.status_code", c.Writer.Status()),
			attribute.KeyValue("http.response_body", string(w.body)),
		)
		rt.Finish()

		rt.Log.Info().
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if room := maxRecordedBody - len(w.body); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body = append(w.body, b[:room]...)
	}
	return w.ResponseWriter.Write(b)
}
