package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a prefixed row identifier, e.g. "sale-1717…-a3f09c".
func NewID(prefix string) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UTC().UnixNano(), hex.EncodeToString(u[:6]))
}

const orderIDPrefix = "#ORD-"

// NewOrderID returns a customer-facing order id of the form #ORD-XXXXXXXX,
// with 8 uppercase hex characters drawn from a random 128-bit source. The
// store still enforces uniqueness; callers retry on conflict.
func NewOrderID() string {
	u := uuid.New()
	return orderIDPrefix + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// ValidOrderID reports whether s looks like a generated order id. Caller
// supplied order ids are free-form; this only guards ids this backend mints.
func ValidOrderID(s string) bool {
	if !strings.HasPrefix(s, orderIDPrefix) {
		return false
	}
	tail := s[len(orderIDPrefix):]
	if len(tail) != 8 {
		return false
	}
	for _, r := range tail {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
