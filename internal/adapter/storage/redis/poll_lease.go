package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PollLease implements ports.PollLease with SET NX PX. Each instance holds
// leases under its own owner token so it never releases another's.
type PollLease struct {
	client *goredis.Client
	prefix string
	owner  string
}

// NewPollLease creates a lease store owned by this process.
func NewPollLease(client *goredis.Client) *PollLease {
	return &PollLease{
		client: client,
		prefix: "poll-lease:",
		owner:  uuid.NewString(),
	}
}

// Acquire takes the lease for a payment. It returns false if another
// holder has it and the TTL has not run out.
func (l *PollLease) Acquire(ctx context.Context, paymentID uuid.UUID, ttl time.Duration) (bool, error) {
	err := l.client.SetArgs(ctx, l.prefix+paymentID.String(), l.owner, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lease acquire: %w", err)
	}
	return true, nil
}

// Release drops the lease if this process still holds it.
func (l *PollLease) Release(ctx context.Context, paymentID uuid.UUID) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + paymentID.String()}, l.owner).Err(); err != nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
