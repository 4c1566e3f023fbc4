package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenMarkdown(t *testing.T) {
	md := "# Title\n\nSome *emphasised* prose with a [link](http://example.com).\n\n```go\nfunc main() {}\n```\n"
	out := FlattenMarkdown(md)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "Some emphasised prose with a link.")
	require.Contains(t, out, "func main() {}")
	require.NotContains(t, out, "*")
	require.NotContains(t, out, "](")
}

func TestNormalize(t *testing.T) {
	in := "a   b\tc\n\n\n\nd  e"
	require.Equal(t, "a b c\n\nd e", Normalize(in))
}
