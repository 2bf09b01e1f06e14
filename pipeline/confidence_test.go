package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   float64
		wantOK bool
	}{
		{
			name:   "markdown table cell",
			text:   "## Summary\n\n| **Confidence score** | 0.82 |\n",
			want:   0.82,
			wantOK: true,
		},
		{
			name:   "labelled inline with colon",
			text:   "Overall confidence score: 0.9 based on available data.",
			want:   0.9,
			wantOK: true,
		},
		{
			name:   "bare confidence mention",
			text:   "Confidence: 0.75",
			want:   0.75,
			wantOK: true,
		},
		{
			name:   "case insensitive table",
			text:   "| **CONFIDENCE SCORE** | 0.5 |",
			want:   0.5,
			wantOK: true,
		},
		{
			name:   "table takes priority over inline",
			text:   "confidence: 0.2\n| **Confidence score** | 0.95 |",
			want:   0.95,
			wantOK: true,
		},
		{
			name:   "no score",
			text:   "This output has no score at all.",
			wantOK: false,
		},
		{
			name:   "out of range rejected",
			text:   "Confidence score: 42",
			wantOK: false,
		},
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
		{
			name:   "integer one accepted",
			text:   "confidence: 1",
			want:   1,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractConfidence(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestExtractConfidence_NeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		val, ok := ExtractConfidence(text)
		if ok {
			assert.GreaterOrEqual(t, val, 0.0)
			assert.LessOrEqual(t, val, 1.0)
		}
	})
}
