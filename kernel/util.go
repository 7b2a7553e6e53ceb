package kernel

import (
	"errors"
	"io"

	"git.sr.ht/~aondrejcak/payout-api/faults"
)

// BindJSON decodes the request body. An empty body is reported as a
// validation error like any other malformed input.
func (rt *RequestRuntime) BindJSON(obj any) error {
	if err := rt.RequestContext.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return faults.Validationf("request body is required")
		}
		return faults.Validationf("malformed request body: %v", err)
	}
	return nil
}
