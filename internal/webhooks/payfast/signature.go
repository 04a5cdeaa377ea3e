package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"strings"
)

// Signature computes the ITN signature: every non-signature field in posted
// order as key=urlencode(value) joined by '&', then the passphrase, MD5 hex.
func Signature(fields []Field, passphrase string) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if f.Key == "signature" {
			continue
		}
		parts = append(parts, f.Key+"="+encode(strings.TrimSpace(f.Value)))
	}
	if p := strings.TrimSpace(passphrase); p != "" {
		parts = append(parts, "passphrase="+encode(p))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the posted signature with the expected one in constant time.
func VerifySignature(n *Notification, passphrase string) bool {
	if n == nil || n.Signature == "" {
		return false
	}
	expected := Signature(n.Fields, passphrase)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.Signature)) == 1
}

// encode matches PHP urlencode, which the gateway uses on its side.
func encode(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "~", "%7E")
}
