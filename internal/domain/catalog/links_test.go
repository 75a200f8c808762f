package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveImage(t *testing.T) {
	tests := []struct {
		name    string
		image   string
		baseDir string
		want    string
	}{
		{"empty", "", "perfumes.webp/", ""},
		{"whitespace only", "   ", "perfumes.webp/", ""},
		{"absolute https", "https://cdn.example.com/rosa.webp", "perfumes.webp/", "https://cdn.example.com/rosa.webp"},
		{"absolute http", "http://cdn.example.com/rosa.webp", "perfumes.webp/", "http://cdn.example.com/rosa.webp"},
		{"uppercase scheme", "HTTPS://cdn.example.com/rosa.webp", "perfumes.webp/", "HTTPS://cdn.example.com/rosa.webp"},
		{"explicit relative", "./img/rosa.webp", "perfumes.webp/", "./img/rosa.webp"},
		{"rooted path", "/img/rosa.webp", "perfumes.webp/", "/img/rosa.webp"},
		{"bare filename", "rosa.webp", "perfumes.webp/", "perfumes.webp/rosa.webp"},
		{"base without slash", "rosa.webp", "perfumes.webp", "perfumes.webp/rosa.webp"},
		{"no base dir", "rosa.webp", "", "rosa.webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveImage(tt.image, tt.baseDir))
		})
	}
}

func TestWhatsAppLink(t *testing.T) {
	got := WhatsAppLink("573001234567", "Rosa Mística")

	assert.Equal(t, "https://wa.me/573001234567?text=Hola%20quiero%20comprar%20Rosa%20M%C3%ADstica", got)
	assert.NotContains(t, got, "+")
}
