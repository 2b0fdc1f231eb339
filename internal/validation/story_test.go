package validation

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func ptr(f float64) *float64 { return &f }

func TestValidateNewStory(t *testing.T) {
	tests := []struct {
		name    string
		input   NewStory
		invalid []string
	}{
		{
			name:  "valid without location",
			input: NewStory{Description: "hello", Photo: pngHeader},
		},
		{
			name:  "valid with location",
			input: NewStory{Description: "hello", Photo: pngHeader, Lat: ptr(-6.2), Lon: ptr(106.8)},
		},
		{
			name:    "missing description and photo",
			input:   NewStory{},
			invalid: []string{"Description", "Photo"},
		},
		{
			name:    "photo is not an image",
			input:   NewStory{Description: "d", Photo: []byte("just some text")},
			invalid: []string{"Photo"},
		},
		{
			name:    "photo too large",
			input:   NewStory{Description: "d", Photo: append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxPhotoSize)...)},
			invalid: []string{"Photo"},
		},
		{
			name:    "latitude without longitude",
			input:   NewStory{Description: "d", Photo: pngHeader, Lat: ptr(1)},
			invalid: []string{"Lon"},
		},
		{
			name:    "out of range",
			input:   NewStory{Description: "d", Photo: pngHeader, Lat: ptr(91), Lon: ptr(-181)},
			invalid: []string{"Lat", "Lon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewStory(tt.input)
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			for _, field := range tt.invalid {
				assert.True(t, verr.Has(field), "expected %s to fail: %v", field, verr)
			}
			assert.Len(t, verr.Fields, len(tt.invalid))
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials(Credentials{Email: "d@example.org", Password: "12345678"}))

	err := ValidateCredentials(Credentials{Email: "nope", Password: "short"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("Email"))
	assert.True(t, verr.Has("Password"))
	assert.Contains(t, err.Error(), "Password: min=8")
}

func TestValidateRegistration(t *testing.T) {
	assert.NoError(t, ValidateRegistration(Registration{Name: "Dimas", Email: "d@example.org", Password: "12345678"}))
	assert.Error(t, ValidateRegistration(Registration{Name: "D", Email: "d@example.org", Password: "12345678"}))
}
