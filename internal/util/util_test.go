package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{id: "a.py", want: "py"},
		{id: "src/pkg/Main.GO", want: "go"},
		{id: `C:\work\calc.PY`, want: "py"},
		{id: "build/Makefile", want: "makefile"},
		{id: "Dockerfile", want: "dockerfile"},
		{id: ".gitignore", want: DefaultContentType},
		{id: "README", want: DefaultContentType},
		{id: "archive.tar.gz", want: "gz"},
		{id: "", want: DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentType(tt.id))
		})
	}
}

func TestHashText(t *testing.T) {
	a := HashText("prompt")
	assert.Len(t, a, 16)
	assert.Equal(t, a, HashText("prompt"))
	assert.NotEqual(t, a, HashText("other prompt"))
}
