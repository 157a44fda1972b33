package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"trust-service/internal/config"
)

// BucketingManager spreads users and audit events over a fixed number of
// partitions with murmur3, so hot users do not share a partition key.
type BucketingManager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	bm := &BucketingManager{
		userBuckets:  max(cfg.UserBuckets, 1),
		eventBuckets: max(cfg.EventBuckets, 1),
	}
	bm.hasherPool = sync.Pool{
		New: func() any {
			return murmur3.New64()
		},
	}
	return bm
}

// GetUserBucket returns the partition for a user id, in [0, userBuckets).
func (bm *BucketingManager) GetUserBucket(userID string) int {
	return bm.getBucket(userID, bm.userBuckets)
}

// GetEventBucket returns the partition for an audit event key.
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) GetUserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) GetEventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
