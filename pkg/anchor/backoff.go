package anchor

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffPolicy bounds the retry delays for a stuck anchor range.
type BackoffPolicy struct {
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
}

// DefaultBackoff is tuned so a flaky witness is retried within seconds but a
// dead one does not hammer the network.
var DefaultBackoff = BackoffPolicy{
	BaseMs:      500,
	MaxMs:       60_000,
	MaxJitterMs: 250,
}

// ComputeBackoff returns the delay before retrying a range, using exponential
// growth and deterministic jitter so retry timing is reproducible in replay.
func ComputeBackoff(first, last uint64, attempt int, policy BackoffPolicy) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}

	delay := policy.BaseMs * factor
	if delay > policy.MaxMs {
		delay = policy.MaxMs
	}

	return time.Duration(delay+jitter(first, last, attempt, policy.MaxJitterMs)) * time.Millisecond
}

func jitter(first, last uint64, attempt int, maxJitterMs int64) int64 {
	if maxJitterMs == 0 {
		return 0
	}
	seed := fmt.Sprintf("anchor:%d:%d:%d", first, last, attempt)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(maxJitterMs))
}
