package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Corp":          "acme-corp",
		"  Weird -- Name!  ": "weird-name",
		"UPPER":              "upper",
		"a/b/c":              "a-b-c",
		"123 Go":             "123-go",
		"---":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}
