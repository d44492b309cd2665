package batchid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// New returns a batch-* ULID string. The id doubles as the role session name
// during credential minting, so it sticks to [A-Za-z0-9-].
func New() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	return "batch-" + strings.ToLower(id.String())
}

// IsValid reports whether the string is a batch-* ULID.
func IsValid(value string) bool {
	if !strings.HasPrefix(value, "batch-") {
		return false
	}
	_, err := Parse(value)
	return err == nil
}

// Parse strips the batch- prefix and returns the ULID.
func Parse(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "batch-")
	value = strings.TrimPrefix(value, "BATCH-")
	return ulid.Parse(value)
}
