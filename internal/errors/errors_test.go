package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = stderrors.New("sentinel")

func TestWrapKeepsCodeAndChain(t *testing.T) {
	base := DuplicateComputation(errSentinel)
	wrapped := Wrapf(base, "run %d", 3)

	assert.Equal(t, CodeDuplicateComputation, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, errSentinel)
	assert.Contains(t, wrapped.Error(), "run 3")
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap(errSentinel, "context")
	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, errSentinel)
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", InputMismatch(errSentinel))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeInputMismatch, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(errSentinel))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeFieldFailed, errSentinel)
	assert.Equal(t, CodeFieldFailed, GetCode(err))
	assert.ErrorIs(t, err, errSentinel)
}
