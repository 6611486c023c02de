package httpmiddleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// HeaderAPIKey is the request header carrying the API key.
const HeaderAPIKey = "X-API-Key"

// APIKeyConfig configures API key authentication. Keys are never stored in
// plain text: KeyHashes holds hex encoded HMAC-SHA256 digests of the keys
// under Pepper.
type APIKeyConfig struct {
	Pepper    string
	KeyHashes []string
}

// HashAPIKey returns the hex encoded HMAC-SHA256 of key under pepper.
func HashAPIKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// APIKey returns a middleware that rejects requests without a known API key
// with 401. Every configured hash is compared in constant time.
func APIKey(cfg APIKeyConfig) (Middleware, error) {
	hashes := make([][]byte, 0, len(cfg.KeyHashes))
	for _, h := range cfg.KeyHashes {
		b, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			return nil, errors.Wrap(err, "decode api key hash")
		}
		if len(b) != sha256.Size {
			return nil, errors.Errorf("api key hash has %d bytes, want %d", len(b), sha256.Size)
		}
		hashes = append(hashes, b)
	}
	pepper := []byte(cfg.Pepper)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			if key == "" || !matchKey(pepper, key, hashes) {
				zctx.From(r.Context()).Warn("API key rejected", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid API key is required.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func matchKey(pepper []byte, key string, hashes [][]byte) bool {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	sum := mac.Sum(nil)

	ok := 0
	for _, h := range hashes {
		ok |= subtle.ConstantTimeCompare(sum, h)
	}
	return ok == 1
}
