package join

import (
	"errors"

	"github.com/ignite/keylock/internal/domain"
)

var (
	// ErrKeyConflict means the key was taken between evaluation and lock.
	// The join may be retried once.
	ErrKeyConflict = errors.New("key conflict: lost lock race")

	ErrCampaignNotFound = domain.ErrCampaignNotFound
	ErrStreamerNotFound = domain.ErrStreamerNotFound

	// ErrCompensationFailed means a lock was taken, the participation write
	// failed, and undoing the lock failed too. The key needs a ForceUnlock.
	ErrCompensationFailed = errors.New("compensation failed: key left locked")
)
