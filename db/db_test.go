package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDBName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/medquest_prod", "medquest_prod"},
		{"mongodb+srv://user:pw@cluster0.example.net/learning?retryWrites=true", "learning"},
		{"mongodb://localhost:27017/", "medquest"},
		{"mongodb://localhost:27017", "medquest"},
		{"://bad", "medquest"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDBName(tt.uri))
		})
	}
}
