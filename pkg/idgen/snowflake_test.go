package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDUnique(t *testing.T) {
	const n = 10000

	ids := make(map[int64]struct{}, n)
	for i := 0; i < n; i++ {
		id := NextID()
		assert.Greater(t, id, int64(0))
		_, dup := ids[id]
		assert.False(t, dup, "duplicate id %d", id)
		ids[id] = struct{}{}
	}
}

func TestNextIDUniqueConcurrent(t *testing.T) {
	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	ids := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				ids[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, workers*perWorker)
}

func TestGenerateOrderCode(t *testing.T) {
	a := GenerateOrderCode()
	b := GenerateOrderCode()

	assert.Greater(t, a, int64(0))
	assert.NotEqual(t, a, b)
}

func TestGenerateTransactionNo(t *testing.T) {
	no := GenerateTransactionNo()
	assert.True(t, strings.HasPrefix(no, "WTX"), "got %s", no)
	assert.Len(t, no, len("WTX")+14+8)

	assert.NotEqual(t, no, GenerateTransactionNo())
}

func TestGenerateRefundNo(t *testing.T) {
	no := GenerateRefundNo()
	assert.True(t, strings.HasPrefix(no, "REF"), "got %s", no)
}
