package imagepipeline

import (
	"encoding/base64"
	"errors"
	"mime"
	"net/url"
	"strings"
)

var (
	errMalformedTag    = errors.New("malformed data url tag")
	errMalformedBase64 = errors.New("malformed base64 payload")
	errTooLarge        = errors.New("image exceeds the size limit")
)

const dataURLPrefix = "data:"

// embedded is a decoded data URL payload.
type embedded struct {
	contentType string
	data        []byte
}

func isDataURL(s string) bool {
	return len(s) >= len(dataURLPrefix) && strings.EqualFold(s[:len(dataURLPrefix)], dataURLPrefix)
}

// parseDataURL decodes data:<type>;base64,<body>. Only base64 bodies are
// accepted. Bodies that cannot decode to maxBytes or less are rejected before
// decoding; maxBytes <= 0 disables the limit.
func parseDataURL(s string, maxBytes int64) (embedded, error) {
	header, body, ok := strings.Cut(s[len(dataURLPrefix):], ",")
	if !ok {
		return embedded{}, errMalformedTag
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 || mediaType == "" {
		return embedded{}, errMalformedTag
	}
	contentType, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return embedded{}, errMalformedTag
	}

	body = strings.TrimSpace(body)
	// DecodedLen counts up to two padding bytes.
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(body)))-2 > maxBytes {
		return embedded{}, errTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil || len(data) == 0 {
		return embedded{}, errMalformedBase64
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return embedded{}, errTooLarge
	}
	return embedded{contentType: contentType, data: data}, nil
}

// isDurableURL reports whether s is an absolute http(s) URL with a host.
func isDurableURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
