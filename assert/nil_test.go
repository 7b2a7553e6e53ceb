package assert

import (
	"strings"
	"testing"
)

func TestNotNilPanicsWithMessage(t *testing.T) {
	defer func() {
		r := recover()
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, "service != nil") {
			t.Fatalf("unexpected panic value %v", r)
		}
	}()
	NotNil(nil, "%s != nil", "service")
}

func TestIsNil(t *testing.T) {
	IsNil(nil, "nil is nil")
}
