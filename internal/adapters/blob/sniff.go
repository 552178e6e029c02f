package blob

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// containerAliases maps container types mimetype reports for audio-only
// recordings to the audio type browsers and players expect.
var containerAliases = map[string]string{
	"video/webm":      "audio/webm",
	"application/ogg": "audio/ogg",
	"video/mp4":       "audio/mp4",
}

// Sniff detects an audio payload's content type and file extension from its
// magic bytes. Non-audio payloads return ErrUnsupportedType.
func Sniff(data []byte) (contentType, ext string, err error) {
	mt := mimetype.Detect(data)
	ct, _, _ := strings.Cut(mt.String(), ";")
	if alias, ok := containerAliases[ct]; ok {
		ct = alias
	}
	if !strings.HasPrefix(ct, "audio/") {
		return "", "", ErrUnsupportedType
	}
	ext = mt.Extension()
	if ext == "" {
		ext = ".bin"
	}
	return ct, ext, nil
}

// ContentTypeForKey returns the content type implied by a stored key's extension.
func ContentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(key, ".ogg"), strings.HasSuffix(key, ".oga"), strings.HasSuffix(key, ".opus"):
		return "audio/ogg"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".m4a"), strings.HasSuffix(key, ".mp4"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
