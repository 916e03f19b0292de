package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	t.Run("paragraphs become lines", func(t *testing.T) {
		text := HTMLToText("<p>first paragraph</p><p>second paragraph</p>")
		assert.Equal(t, "first paragraph\nsecond paragraph", text)
	})

	t.Run("inline markup is flattened", func(t *testing.T) {
		text := HTMLToText("<p>The <strong>Transformer</strong> uses <em>attention</em>.</p>")
		assert.Equal(t, "The Transformer uses attention .", text)
	})

	t.Run("script and style are dropped", func(t *testing.T) {
		text := HTMLToText("<p>visible</p><script>alert(1)</script><style>.x{}</style>")
		assert.Equal(t, "visible", text)
	})

	t.Run("lists keep items on separate lines", func(t *testing.T) {
		text := HTMLToText("<ul><li>one</li><li>two</li></ul>")
		assert.Equal(t, "one\ntwo", text)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", HTMLToText(""))
		assert.Equal(t, "", HTMLToText("<p>   </p>"))
	})
}
