package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the caller identity. Role is one of client, provider or admin.
type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Exp  int64  `json:"exp"`
	Iat  int64  `json:"iat"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// KeySource resolves RS256 verification keys by key id.
type KeySource interface {
	Get(keyID string) (*rsa.PublicKey, error)
}

// Verifier checks bearer tokens signed either with a shared HS256 secret or with
// an RS256 key from Keys. Either may be left empty to disable that algorithm.
type Verifier struct {
	Secret string
	Keys   KeySource
	Now    func() time.Time
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	var h header
	if err := decodeSegment(parts[0], &h); err != nil {
		return nil, ErrInvalidToken
	}

	unsigned := parts[0] + "." + parts[1]
	switch h.Alg {
	case "HS256":
		if v.Secret == "" || !hmac.Equal([]byte(parts[2]), []byte(hmacSHA256(unsigned, v.Secret))) {
			return nil, ErrInvalidToken
		}
	case "RS256":
		if v.Keys == nil {
			return nil, ErrInvalidToken
		}
		key, err := v.Keys.Get(h.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		if err := verifyRS256(unsigned, parts[2], key); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidToken
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil || claims.Sub == "" {
		return nil, ErrInvalidToken
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if claims.Exp > 0 && now().Unix() > claims.Exp {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	unsigned, err := encodeUnsigned(header{Alg: "HS256", Typ: "JWT"}, claims)
	if err != nil {
		return "", err
	}
	return unsigned + "." + hmacSHA256(unsigned, secret), nil
}

func encodeUnsigned(h header, claims Claims) (string, error) {
	headerJSON, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON), nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyRS256(unsigned, signature string, key *rsa.PublicKey) error {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidToken
	}
	hash := sha256.Sum256([]byte(unsigned))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], sig); err != nil {
		return ErrInvalidToken
	}
	return nil
}
