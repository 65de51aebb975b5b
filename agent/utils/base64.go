package utils

import "encoding/base64"

// DecodeB64 decodes base64url, padded or not. JWE fields are unpadded but
// some agents pad them.
func DecodeB64(s string) ([]byte, error) {
	enc := base64.RawURLEncoding
	if len(s)%4 == 0 && len(s) > 0 && s[len(s)-1] == '=' {
		enc = base64.URLEncoding
	}
	return enc.DecodeString(s)
}

// EncodeB64 encodes to unpadded base64url.
func EncodeB64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
