package instance

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"regexp"
)

// maxCloudInitBytes bounds the base64-encoded cloud-init user-data length
// (spec.md §6).
const maxCloudInitBytes = 65535

// ErrCloudInitTooLarge is returned when the rendered, base64-encoded
// user-data exceeds maxCloudInitBytes.
var ErrCloudInitTooLarge = errors.New("instance: rendered cloud-init exceeds 65535 bytes")

var cloudInitPlaceholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderCloudInit replaces {{key}} occurrences in template with values,
// logging a warning for every placeholder left unresolved, then
// base64-encodes the result for providers that require it, rejecting
// anything that encodes past maxCloudInitBytes (spec.md §6).
func RenderCloudInit(template string, values map[string]string) (string, error) {
	rendered := cloudInitPlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		key := cloudInitPlaceholder.FindStringSubmatch(match)[1]
		v, ok := values[key]
		if !ok {
			slog.Warn("instance: unresolved cloud-init placeholder", "placeholder", match)
			return match
		}
		return v
	})

	encoded := base64.StdEncoding.EncodeToString([]byte(rendered))
	if len(encoded) > maxCloudInitBytes {
		return "", ErrCloudInitTooLarge
	}
	return encoded, nil
}
