package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(ErrInvalidAmount, "amount %d must be positive", -3)

	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, "InvalidAmount", CodeOf(err, "ServerError"))
	assert.Contains(t, err.Error(), "amount -3 must be positive")
}

func TestUnclassifiedErrorsAreInternal(t *testing.T) {
	err := fmt.Errorf("query failed: %w", errors.New("connection reset"))

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "ServerError", CodeOf(err, "ServerError"))
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrOrderNotFound, ErrMappingMissing))
	assert.Equal(t, KindNotFound, ErrOrderNotFound.Kind)
	assert.Equal(t, KindNotFound, ErrMappingMissing.Kind)
}
