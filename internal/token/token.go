// Package token implements keyed-MAC signed opaque tokens: a configurable
// number of random bytes, optionally bound to caller data and optionally
// carrying an issue timestamp, HMAC-signed and base64 encoded.
//
// Generation and verification modes are explicit. A token minted by
// GenerateBound only verifies through VerifyBound with the same data, a timed
// token only through the timed verifiers. The mode is folded into the signed
// bytes, so mismatched modes fail closed rather than being inferred.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"hash"
	"strings"
	"time"

	"github.com/warden-web/warden/internal/shared"
)

// Algorithm selects the MAC hash.
type Algorithm string

// Supported MAC algorithms.
const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

func (a Algorithm) hasher() func() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New
	case SHA256:
		return sha256.New
	case SHA384:
		return sha512.New384
	case SHA512:
		return sha512.New
	default:
		return nil
	}
}

// Key is an opaque signing key: secret material plus a MAC algorithm.
// It is immutable and never serialized.
type Key struct {
	secret []byte
	newMAC func() hash.Hash
}

// DeriveKey imports secret as raw key material for the chosen MAC algorithm.
// The same secret and algorithm always yield a functionally equivalent key.
func DeriveKey(secret string, alg Algorithm) (*Key, error) {
	if secret == "" {
		return nil, shared.NewConfigError("token: secret must not be empty")
	}
	h := alg.hasher()
	if h == nil {
		return nil, shared.NewConfigError("token: unsupported algorithm %q", alg)
	}
	s := []byte(secret)
	return &Key{secret: s, newMAC: func() hash.Hash { return hmac.New(h, s) }}, nil
}

const (
	// DefaultByteLength is the random segment size in bytes.
	DefaultByteLength = 32
	// DefaultSeparator joins the base64 token segments.
	DefaultSeparator = "."
)

// base64 standard alphabet plus padding; the separator must avoid all of it
// so a simple split can never cut inside a segment.
const b64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// Options tunes token shape. Zero values fall back to defaults.
type Options struct {
	ByteLength int
	Separator  string
	Serializer Serializer
}

func (o Options) withDefaults() (Options, error) {
	if o.ByteLength == 0 {
		o.ByteLength = DefaultByteLength
	}
	if o.ByteLength < 0 {
		return o, shared.NewConfigError("token: byte length must be positive")
	}
	if o.Separator == "" {
		o.Separator = DefaultSeparator
	}
	if len(o.Separator) != 1 || strings.Contains(b64Alphabet, o.Separator) {
		return o, shared.NewConfigError("token: separator %q must be a single character outside the base64 alphabet", o.Separator)
	}
	if o.Serializer == nil {
		o.Serializer = DefaultSerializer
	}
	return o, nil
}

// Mode bits folded into the signed bytes. Domain separation between the four
// generate/verify shapes: binding empty data is distinct from binding nothing.
const (
	modePlain byte = 0
	modeBound byte = 1 << 0
	modeTimed byte = 1 << 1
)

// Generate mints a plain token: random bytes and their signature.
func (k *Key) Generate(opts Options) (string, error) {
	return k.generate(modePlain, nil, time.Time{}, opts)
}

// GenerateBound mints a token whose signature also covers the serialized
// data. The data itself is not embedded in the token; verification requires
// presenting the same data again. Data that serializes to zero bytes is still
// bound.
func (k *Key) GenerateBound(data any, opts Options) (string, error) {
	return k.generate(modeBound, data, time.Time{}, opts)
}

// GenerateTimed mints a token carrying its issue time as an extra segment.
func (k *Key) GenerateTimed(opts Options) (string, error) {
	return k.generate(modeTimed, nil, time.Now(), opts)
}

// GenerateTimedBound combines a timestamp segment with data binding.
func (k *Key) GenerateTimedBound(data any, opts Options) (string, error) {
	return k.generate(modeTimed|modeBound, data, time.Now(), opts)
}

func (k *Key) generate(mode byte, data any, now time.Time, opts Options) (string, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return "", err
	}

	random := make([]byte, opts.ByteLength)
	if _, err := rand.Read(random); err != nil {
		// Entropy exhaustion is fatal, not retried.
		panic("token: entropy source failed: " + err.Error())
	}

	var ts []byte
	if mode&modeTimed != 0 {
		ts = make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(now.UnixMilli()))
	}

	var payload []byte
	if mode&modeBound != 0 {
		payload, err = opts.Serializer(data)
		if err != nil {
			return "", err
		}
	}

	sig := k.sign(mode, random, ts, payload)

	enc := base64.StdEncoding
	segments := make([]string, 0, 3)
	segments = append(segments, enc.EncodeToString(random))
	if ts != nil {
		segments = append(segments, enc.EncodeToString(ts))
	}
	segments = append(segments, enc.EncodeToString(sig))
	return strings.Join(segments, opts.Separator), nil
}

// sign computes the MAC over the framed byte sequence:
// mode || random || [timestamp] || [len(payload) || payload].
func (k *Key) sign(mode byte, random, ts, payload []byte) []byte {
	mac := k.newMAC()
	_, _ = mac.Write([]byte{mode})
	_, _ = mac.Write(random)
	if mode&modeTimed != 0 {
		_, _ = mac.Write(ts)
	}
	if mode&modeBound != 0 {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(payload)))
		_, _ = mac.Write(n[:])
		_, _ = mac.Write(payload)
	}
	return mac.Sum(nil)
}

// Verify checks a plain token. Malformed input is a verification failure,
// never a panic.
func (k *Key) Verify(tok string, opts Options) bool {
	return k.verify(tok, modePlain, nil, 0, time.Now(), opts)
}

// VerifyBound checks a data-bound token against the same data it was
// generated with.
func (k *Key) VerifyBound(tok string, data any, opts Options) bool {
	return k.verify(tok, modeBound, data, 0, time.Now(), opts)
}

// VerifyTimed checks a timed token and rejects it once older than maxAge.
func (k *Key) VerifyTimed(tok string, maxAge time.Duration, opts Options) bool {
	return k.verify(tok, modeTimed, nil, maxAge, time.Now(), opts)
}

// VerifyTimedBound checks a timed, data-bound token.
func (k *Key) VerifyTimedBound(tok string, data any, maxAge time.Duration, opts Options) bool {
	return k.verify(tok, modeTimed|modeBound, data, maxAge, time.Now(), opts)
}

// clockSkewGrace tolerates issue times slightly in the future when the
// verifying machine's clock lags the issuing one.
const clockSkewGrace = time.Minute

func (k *Key) verify(tok string, mode byte, data any, maxAge time.Duration, now time.Time, opts Options) bool {
	opts, err := opts.withDefaults()
	if err != nil {
		return false
	}

	want := 2
	if mode&modeTimed != 0 {
		want = 3
	}
	segments := strings.Split(tok, opts.Separator)
	if len(segments) != want {
		return false
	}

	enc := base64.StdEncoding
	random, err := enc.DecodeString(segments[0])
	if err != nil {
		return false
	}

	var ts []byte
	if mode&modeTimed != 0 {
		ts, err = enc.DecodeString(segments[1])
		if err != nil || len(ts) != 8 {
			return false
		}
	}

	sig, err := enc.DecodeString(segments[want-1])
	if err != nil {
		return false
	}

	var payload []byte
	if mode&modeBound != 0 {
		payload, err = opts.Serializer(data)
		if err != nil {
			return false
		}
	}

	if !hmac.Equal(k.sign(mode, random, ts, payload), sig) {
		return false
	}

	if mode&modeTimed != 0 {
		issued := time.UnixMilli(int64(binary.BigEndian.Uint64(ts)))
		if now.Sub(issued) > maxAge {
			return false
		}
		if issued.After(now.Add(clockSkewGrace)) {
			return false
		}
	}
	return true
}
