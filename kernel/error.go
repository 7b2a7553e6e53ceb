package kernel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"git.sr.ht/~aondrejcak/payout-api/faults"
)

func (rt *RequestRuntime) MakeError(err error) error {
	s := rt.Span
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	rt.Error = err

	return err
}

func (rt *RequestRuntime) MakeErrorf(format string, args ...interface{}) error {
	return rt.MakeError(fmt.Errorf(format, args...))
}

func (rt *RequestRuntime) abort(status int, code string, err error, public string) {
	rt.MakeError(err)
	traceID := rt.Span.SpanContext().TraceID().String()
	rt.Unwind()

	rt.AppRuntime.Diagnostic.ErrorCounter.Add(rt.SpanContext, 1,
		metric.WithAttributes(attribute.KeyValue("http.status_code", status)),
	)
	ev := rt.Log.Info()
	if status >= http.StatusInternalServerError {
		ev = rt.Log.Error()
	}
	ev.Err(err).Int("status", status).Str("code", code).Msg("request failed")

	body := gin.H{
		"error":   public,
		"traceId": traceID,
	}
	if code != "" {
		body["code"] = code
	}
	rt.RequestContext.AbortWithStatusJSON(status, body)
}

func (rt *RequestRuntime) E(code int, err error) *RequestRuntime {
	var fe *faults.Error
	kind := ""
	if errors.As(err, &fe) {
		kind = fe.Code
	}
	rt.abort(code, kind, err, err.Error())
	return rt
}

func (rt *RequestRuntime) Ef(code int, format string, args ...interface{}) *RequestRuntime {
	return rt.E(code, fmt.Errorf(format, args...))
}

// Fail answers with the status the error's kind maps to. Internal failures
// hide their detail from the client.
func (rt *RequestRuntime) Fail(err error) *RequestRuntime {
	status := faults.HTTPStatus(err)
	public := err.Error()
	if status == http.StatusInternalServerError {
		public = "internal error"
	}
	rt.abort(status, faults.CodeOf(err), err, public)
	return rt
}
