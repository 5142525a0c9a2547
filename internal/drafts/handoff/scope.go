package handoff

import (
	"errors"
	"strings"
)

var ErrScopeMismatch = errors.New("handoff scope does not match receiving scope")

// CheckScope blocks an import only when both sides carry a scope and the
// scopes differ. A missing scope on either side is not a mismatch.
func CheckScope(payloadScope, receiverScope string) error {
	p := strings.TrimSpace(payloadScope)
	r := strings.TrimSpace(receiverScope)
	if p == "" || r == "" || p == r {
		return nil
	}
	return ErrScopeMismatch
}
