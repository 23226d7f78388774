// internal/errs/errors_test.go
package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsNestedErrors(t *testing.T) {
	cause := Validation("bad input")
	wrapped := Wrap(KindTransientInfra, cause, "outer")

	// 最外层的分类生效
	assert.Equal(t, KindTransientInfra, KindOf(wrapped))
	assert.True(t, errors.Is(errors.Unwrap(wrapped), cause))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindTransientInfra, nil, "noop"))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(Validation("v")))
	assert.False(t, Retryable(NotFound("n")))
	assert.False(t, Retryable(InvalidState("s")))
	assert.False(t, Retryable(InsufficientInventory("i")))
	assert.False(t, Retryable(PoisonMessage(errors.New("x"), "p")))

	assert.True(t, Retryable(TransientInfra(errors.New("x"), "t")))
	// 未分类的错误保守地按可重试处理
	assert.True(t, Retryable(errors.New("plain")))
}
