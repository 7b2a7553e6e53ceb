package kernel

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type spanCtxPair struct {
	span trace.Span
	ctx  context.Context
}

// RequestRuntime carries the per-request span stack. The root span lives at
// index 0 and is ended by Finish; handlers push children with StepInto and
// pop them with EndBlock.
type RequestRuntime struct {
	AppRuntime *AppRuntime
	DB         *gorm.DB
	Log        zerolog.Logger

	RequestContext *gin.Context
	Span           trace.Span
	SpanContext    context.Context

	Error error

	pairs   []*spanCtxPair
	current int
}

func InitRequest(art *AppRuntime, rctx *gin.Context) *RequestRuntime {
	ctx := rctx.Request.Context()
	name := rctx.FullPath()
	if name == "" {
		name = rctx.Request.URL.Path
	}
	span, ctx := art.Diagnostic.BeginTracing(ctx, name)

	rt := &RequestRuntime{
		AppRuntime: art,
		DB:         art.DatabaseClient,
		Log: art.Logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("method", rctx.Request.Method).
			Str("path", rctx.Request.URL.Path).
			Logger(),

		RequestContext: rctx,
		Span:           span,
		SpanContext:    ctx,
	}
	rt.pairs = append(rt.pairs, &spanCtxPair{span: span, ctx: ctx})
	rt.Log.Debug().Msg("initializing request")

	return rt
}

// Runtime returns the request runtime installed by the tracer middleware.
func Runtime(c *gin.Context) *RequestRuntime {
	return c.MustGet("rt").(*RequestRuntime)
}

func (rt *RequestRuntime) NewChildTracer(spanName string) *RequestRuntime {
	ctx, span := rt.AppRuntime.Diagnostic.Tracer.Start(rt.SpanContext, spanName)
	rt.Log.Trace().Str("span", spanName).Str("span_id", span.SpanContext().SpanID().String()).Msg("child tracer")
	rt.PushTrace(span, ctx)
	return rt
}

func (rt *RequestRuntime) PushTrace(span trace.Span, ctx context.Context) {
	rt.pairs = append(rt.pairs, &spanCtxPair{span: span, ctx: ctx})
}

// Advance moves to the most recently pushed span.
func (rt *RequestRuntime) Advance() {
	rt.SetIndex(len(rt.pairs) - 1)
}

func (rt *RequestRuntime) StepInto(spanName string) *RequestRuntime {
	rt.NewChildTracer(spanName).Advance()
	return rt
}

func (rt *RequestRuntime) StepBack() {
	rt.SetIndex(rt.current - 1)
}

func (rt *RequestRuntime) SetIndex(index int) {
	if index < 0 || index >= len(rt.pairs) {
		rt.Log.Warn().Int("index", index).Int("depth", len(rt.pairs)).Msg("span index out of bounds")
		return
	}
	rt.current = index
	pair := rt.pairs[index]
	rt.Span = pair.span
	rt.SpanContext = pair.ctx
}

// End finishes the current span and drops it and anything above it from
// the stack. The root span is left to Finish.
func (rt *RequestRuntime) End() *RequestRuntime {
	if rt.current == 0 {
		return rt
	}
	for i := len(rt.pairs) - 1; i >= rt.current; i-- {
		rt.pairs[i].span.End()
	}
	rt.pairs = rt.pairs[:rt.current]
	return rt
}

func (rt *RequestRuntime) EndBlock() {
	rt.End().StepBack()
}

// Unwind ends every child span, leaving the root current.
func (rt *RequestRuntime) Unwind() {
	for i := len(rt.pairs) - 1; i > 0; i-- {
		rt.pairs[i].span.End()
	}
	rt.pairs = rt.pairs[:1]
	rt.SetIndex(0)
}

// Depth reports how many spans are open, the root included.
func (rt *RequestRuntime) Depth() int {
	return len(rt.pairs)
}

func (rt *RequestRuntime) Finish() {
	rt.Unwind()
	rt.pairs[0].span.End()
}
