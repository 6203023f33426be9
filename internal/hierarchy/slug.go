package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/nexushub/controlplane/internal/apiserver/database"
)

// Slugify lowercases the name and collapses every run of non-alphanumeric
// characters into a single dash.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// uniqueSlug appends -2, -3, ... until the slug is free.
func uniqueSlug(ctx context.Context, db database.Database, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "tenant"
	}

	slug := base
	for i := 2; ; i++ {
		exists, err := db.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
