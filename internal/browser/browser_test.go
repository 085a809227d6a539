package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestQuadCenter(t *testing.T) {
	x, y := quadCenter(proto.DOMQuad{10, 20, 110, 20, 110, 60, 10, 60})
	assert.Equal(t, 60, x)
	assert.Equal(t, 40, y)

	x, y = quadCenter(proto.DOMQuad{1, 2})
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestNamedKeys(t *testing.T) {
	for _, k := range []string{"enter", "tab", "escape", "arrowdown", "space"} {
		_, ok := namedKeys[k]
		assert.True(t, ok, k)
	}
}
