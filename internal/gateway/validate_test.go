package gateway

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pdf   = []byte("%PDF-1.4\n%%EOF\n")
	pdf20 = []byte("%PDF-1.4\n0123456789\n")
)

func TestLimits_Validate(t *testing.T) {
	limits := Limits{
		MaxItems:      3,
		MaxItemBytes:  32,
		MaxTotalBytes: 48,
		AllowedTypes:  []string{"application/pdf"},
	}

	tests := []struct {
		name      string
		items     []Item
		wantErr   bool
		tooLarge  bool
		errString string
	}{
		{
			name:  "two pdfs",
			items: []Item{{Name: "a", Data: pdf}, {Name: "b", Data: pdf}},
		},
		{
			name:      "no documents",
			items:     nil,
			wantErr:   true,
			errString: "at least one document is required",
		},
		{
			name:      "too many documents",
			items:     []Item{{"a", pdf}, {"b", pdf}, {"c", pdf}, {"d", pdf}},
			wantErr:   true,
			errString: "too many documents",
		},
		{
			name:      "empty document",
			items:     []Item{{Name: "a", Data: pdf}, {Name: "b"}},
			wantErr:   true,
			errString: "document b is empty",
		},
		{
			name:      "item over per-item ceiling",
			items:     []Item{{Name: "big", Data: append([]byte("%PDF-1.4\n"), make([]byte, 40)...)}},
			wantErr:   true,
			tooLarge:  true,
			errString: "document big is",
		},
		{
			name:      "total over ceiling",
			items:     []Item{{"a", pdf20}, {"b", pdf20}, {"c", pdf20}},
			wantErr:   true,
			tooLarge:  true,
			errString: "in total",
		},
		{
			name:      "unsupported type",
			items:     []Item{{Name: "notes", Data: []byte("just some text")}},
			wantErr:   true,
			errString: "unsupported type text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := limits.Validate(tt.items)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), tt.errString)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.tooLarge, ve.TooLarge)
		})
	}
}

func TestLimits_Defaults(t *testing.T) {
	var limits Limits
	assert.Equal(t, int64(DefaultMaxTotalBytes), limits.maxTotal())
	assert.Equal(t, int64(DefaultMaxTotalBytes), limits.maxItem())

	assert.NoError(t, limits.Validate([]Item{{Name: "any", Data: []byte("plain text is fine")}}))
}

func TestLimits_DecodeBase64(t *testing.T) {
	limits := Limits{MaxItemBytes: 64}

	t.Run("plain and data url", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString(pdf)
		items, err := limits.DecodeBase64([]string{encoded, "data:application/pdf;base64," + encoded})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "file0", items[0].Name)
		assert.Equal(t, "file1", items[1].Name)
		assert.Equal(t, pdf, items[0].Data)
		assert.Equal(t, pdf, items[1].Data)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := limits.DecodeBase64([]string{"%%%not base64%%%"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("oversized before decoding", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 200)))
		_, err := limits.DecodeBase64([]string{encoded})

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.True(t, ve.TooLarge)
	})
}

func TestLimits_EncodedLimit(t *testing.T) {
	limits := Limits{MaxTotalBytes: 3000}
	assert.Equal(t, int64(4000+envelopeSlack), limits.EncodedLimit())

	assert.Greater(t, Limits{}.EncodedLimit(), int64(DefaultMaxTotalBytes))
}
