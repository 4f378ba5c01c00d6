//go:build !cornercase_debug

package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

func TestBuffer_InvariantViolationTruncates(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	b := newTestBuffer(t, 4, 1, fsutil.NewMemoryFileSystem())
	b.Admit(testPair(0))
	b.Admit(testPair(1))

	// push a stray raw frame so the rings diverge
	b.mu.Lock()
	b.raw.push(slot[RawFrame]{tick: 99, frame: testPair(99).Raw})
	b.mu.Unlock()

	b.Admit(testPair(2))

	assert.Equal(t, 3, b.Len())
	b.mu.Lock()
	assert.Equal(t, b.processed.len(), b.raw.len())
	b.mu.Unlock()
	assert.NotEmpty(t, logged)
}
