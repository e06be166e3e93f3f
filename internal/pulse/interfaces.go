package pulse

import (
	"context"
	"time"

	"github.com/moltpulse/moltpulse/internal/profile"
)

// CollectRequest carries everything a collector needs for one invocation.
// From and To bound the date window (From <= To, caller-enforced); Limits is
// the resolved depth profile; NoCache bypasses cache reads but collectors
// still write through.
type CollectRequest struct {
	Profile *profile.Profile
	From    time.Time
	To      time.Time
	Depth   Depth
	Limits  DepthProfile
	NoCache bool
}

// Collector fetches Items from exactly one external source. Collect must not
// panic for ordinary failure modes (missing data, network error, malformed
// payload); those are reported through CollectorResult.Err. Implementations
// should check ctx at I/O boundaries; the coordinator abandons collectors
// that cannot be cancelled mid-flight.
type Collector interface {
	Name() string
	Type() string
	// RequiredCredentials lists the credential keys this collector needs.
	// Empty means always available.
	RequiredCredentials() []string
	// RequiresAny reports whether any one of the declared keys satisfies
	// the requirement (false: all keys must be present).
	RequiresAny() bool
	Collect(ctx context.Context, req CollectRequest) CollectorResult
}

// Cache is the shared response cache consulted by collectors. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte)
}

// BlobStore writes serialized run artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
