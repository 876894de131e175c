package realtime

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewInvocationID returns a ULID used to correlate an invocation with its
// completion. IDs minted in the same millisecond still sort in call order.
func NewInvocationID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), idEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
