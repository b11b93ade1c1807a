package source

import (
	"testing"

	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"pdf", []byte("%PDF-1.7\n..."), nil},
		{"finder metadata", []byte("Bud1\x00\x00\x10\x00"), core.ErrSkipped},
		{"aligned finder metadata", []byte("\x00\x00\x00\x01Bud1\x00"), core.ErrSkipped},
		{"html", []byte("<html><body>denied</body></html>"), core.ErrNotAPDF},
		{"empty", nil, core.ErrNotAPDF},
		{"leading whitespace", []byte(" %PDF-1.4"), core.ErrNotAPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.data)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
