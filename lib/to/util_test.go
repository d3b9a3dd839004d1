package to

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmpty(t *testing.T) {
	t.Run("nil string", func(t *testing.T) {
		assert.Equal(t, "", Empty((*string)(nil)))
	})
	t.Run("correlation id", func(t *testing.T) {
		assert.Equal(t, "c-1", Empty(Ptr("c-1")))
	})
	t.Run("nil int", func(t *testing.T) {
		assert.Equal(t, 0, Empty((*int)(nil)))
	})
}
