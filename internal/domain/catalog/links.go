package catalog

import (
	"net/url"
	"strings"
)

// ResolveImage resolves an item's image reference for display. Absolute URLs
// and explicit relative or absolute paths pass through unchanged; a bare
// filename is looked up under baseDir.
func ResolveImage(image, baseDir string) string {
	trimmed := strings.TrimSpace(image)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	if baseDir != "" && !strings.HasSuffix(baseDir, "/") {
		baseDir += "/"
	}
	return baseDir + trimmed
}

// WhatsAppLink builds the wa.me deep link that opens a chat pre-filled with
// a purchase message for the named product.
func WhatsAppLink(phone, name string) string {
	msg := "Hola quiero comprar " + name
	// QueryEscape encodes spaces as '+', which WhatsApp renders literally.
	escaped := strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
	return "https://wa.me/" + phone + "?text=" + escaped
}
