package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Snowflake-style ID generator. 64 bits:
//
//	0 - 41 bit millisecond timestamp - 10 bit worker ID - 12 bit sequence
//
// IDs are unique across workers, trend upward with time (index friendly) and
// fit PayOS's numeric order-code constraint, which is why gateway order codes
// are raw snowflake IDs rather than formatted strings.
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init sets up the default generator. Must be called with a worker ID unique
// per process within the deployment.
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			logrus.Fatalf("workerID must be between 0 and %d", maxWorkerID)
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

// NextID returns the next ID from the default generator.
func NextID() int64 {
	if defaultGenerator == nil {
		Init(1)
	}
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond, spin to the next
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateOrderCode returns a gateway order code. PayOS requires a positive
// numeric code unique per payment request.
func GenerateOrderCode() int64 {
	return NextID()
}

// GenerateTransactionNo returns a wallet ledger transaction number.
// Format: WTX + yyyymmddhhmmss + last 8 digits of a snowflake ID.
func GenerateTransactionNo() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("WTX%s%08d", timestamp, id%100000000)
}

// GenerateRefundNo returns a refund reference number.
func GenerateRefundNo() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("REF%s%08d", timestamp, id%100000000)
}
