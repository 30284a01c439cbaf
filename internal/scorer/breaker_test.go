package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, time.Hour)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		assert.True(t, b.Allow())
	}
	b.RecordFailure()
	assert.False(t, b.Allow(), "第 3 次失败后应熔断")
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := newBreaker(3, time.Hour)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow(), "成功后计数清零，不应熔断")
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow(), "冷却后放行探测请求")

	b.RecordSuccess()
	assert.True(t, b.Allow(), "探测成功后恢复")
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow(), "探测失败应立即再次熔断")
}
