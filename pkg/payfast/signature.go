package payfast

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// passphraseKey is the field name the provider reserves for the merchant
// passphrase. It participates in the key sort like any other field.
const passphraseKey = "passphrase"

// Sign computes the request signature over the given fields and the merchant
// passphrase.
//
// The canonical string is built by merging the passphrase into the field set,
// sorting all keys lexicographically, percent-encoding each value using the
// www-form convention (spaces become '+', escape hex digits uppercase) and
// joining the pairs as "key=value" with '&'. The signature is the lowercase
// hex MD5 digest of that string.
//
// Sign is a pure function: identical inputs yield identical signatures
// regardless of map iteration order, and an empty field map is legal.
func Sign(fields map[string]string, passphrase string) string {
	merged := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged[passphraseKey] = passphrase

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(merged[k]))
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
