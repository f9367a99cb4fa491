package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed identifier such as "stk_1f2d3c...". The prefix
// makes ids self-describing in logs and movement references.
func New(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Number returns a human-facing document number such as
// "SO-20260828-1F2D3C", used for order and job numbers.
func Number(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), raw[:6])
}
