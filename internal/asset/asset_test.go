package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r := NewResolver("/home/test_assets", "/data/assets")

	tests := []struct {
		name  string
		value string
		scope Scope
		want  string
	}{
		{"merge scope", "local:images/a.png", ScopeMerge, "file:///data/assets/images/a.png"},
		{"generation scope", "local:images/a.png", ScopeGeneration, "file:///home/test_assets/images/a.png"},
		{"leading slash in path", "local:/images/a.png", ScopeMerge, "file:///data/assets/images/a.png"},
		{"surrounding whitespace", "  local:v.mp4 ", ScopeMerge, "file:///data/assets/v.mp4"},
		{"scheme is case-insensitive", "LOCAL:clips/b.mp4", ScopeMerge, "file:///data/assets/clips/b.mp4"},
		{"empty", "", ScopeMerge, ""},
		{"http passes through", "https://cdn.example.com/a.mp4", ScopeMerge, "https://cdn.example.com/a.mp4"},
		{"file passes through", " file:///x/y.mp4", ScopeGeneration, "file:///x/y.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.value, tt.scope))
		})
	}
}

func TestResolver_BaseNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		want string
	}{
		{"trailing slash", "/data/assets/", "file:///data/assets/a.mp4"},
		{"relative base", "test_assets", "file:///test_assets/a.mp4"},
		{"windows base", `C:\assets\`, "file:///C:/assets/a.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.base, tt.base)
			assert.Equal(t, tt.want, r.Resolve("local:a.mp4", ScopeMerge))
		})
	}
}

func TestResolver_ResolveAll(t *testing.T) {
	t.Parallel()

	r := NewResolver("/gen", "/merge")
	assert.Equal(t,
		[]string{"file:///gen/a.png", "http://x/b.png"},
		r.ResolveAll([]string{"local:a.png", "http://x/b.png"}, ScopeGeneration))
	assert.Equal(t, "/merge", r.Base(ScopeMerge))
}
