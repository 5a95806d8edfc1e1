// Package naming derives deterministic, content-addressed output paths from
// name templates such as "js/[chunkhash].[name].js".
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
)

const (
	AlgorithmCRC64  = "crc64"
	AlgorithmSHA256 = "sha256"

	// DefaultLength is the number of digest characters substituted for [hash].
	DefaultLength = 8
	minLength     = 4
	crc64Size     = 8
)

// Config selects the digest and how collisions are treated.
type Config struct {
	Algorithm string `yaml:"algorithm"`
	Length    int    `yaml:"length"`
	// SafeMode turns a naming collision into a fatal error instead of a logged warning.
	SafeMode bool `yaml:"safeMode"`
}

// DefaultConfig returns CRC-64/NVME digests truncated to 8 hex characters with
// collisions treated as fatal.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmCRC64,
		Length:    DefaultLength,
		SafeMode:  true,
	}
}

// Kind classifies an artifact for registration and reporting.
type Kind string

const (
	KindScript      Kind = "script"
	KindStyle       Kind = "style"
	KindAsset       Kind = "asset"
	KindPassthrough Kind = "passthrough"
)

// Artifact is a named output ready to be written.
type Artifact struct {
	Key      string
	Kind     Kind
	Template string
	Path     string
	Content  []byte
	Hash     string
}

// Namer resolves templates and tracks the paths claimed during one build so
// two different contents never silently share a final path.
type Namer struct {
	cfg     Config
	mu      sync.Mutex
	claimed map[string]string
}

// New validates cfg and returns a Namer.
func New(cfg Config) (*Namer, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmCRC64
	}
	if cfg.Length == 0 {
		cfg.Length = DefaultLength
	}

	maxLen := digestHexLen(cfg.Algorithm)
	if maxLen == 0 {
		return nil, fmt.Errorf("unknown hash algorithm %q", cfg.Algorithm)
	}
	if cfg.Length < minLength || cfg.Length > maxLen {
		return nil, fmt.Errorf("hash length %d out of range [%d, %d] for %s", cfg.Length, minLength, maxLen, cfg.Algorithm)
	}

	return &Namer{cfg: cfg, claimed: make(map[string]string)}, nil
}

// Config returns the effective configuration.
func (n *Namer) Config() Config {
	return n.cfg
}

// Digest returns the raw digest of content.
func (n *Namer) Digest(content []byte) []byte {
	switch n.cfg.Algorithm {
	case AlgorithmSHA256:
		sum := sha256.Sum256(content)
		return sum[:]
	default:
		h := crc64nvme.New()
		h.Write(content)
		return h.Sum(nil)
	}
}

// Hash returns the full hex digest of content.
func (n *Namer) Hash(content []byte) string {
	return hex.EncodeToString(n.Digest(content))
}

// Resolve substitutes template placeholders for content and logicalName. It
// depends only on its arguments and the namer configuration.
func (n *Namer) Resolve(template string, content []byte, logicalName string) (string, error) {
	tokens, err := parseTemplate(template)
	if err != nil {
		return "", err
	}
	return n.render(tokens, content, logicalName), nil
}

// Artifact resolves the final path for content and wraps it as an Artifact.
func (n *Namer) Artifact(key string, kind Kind, template string, content []byte, logicalName string) (Artifact, error) {
	p, err := n.Resolve(template, content, logicalName)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Key:      key,
		Kind:     kind,
		Template: template,
		Path:     p,
		Content:  content,
		Hash:     n.Hash(content),
	}, nil
}

// Claim records that finalPath carries content with the given hash. Claiming
// the same path twice with identical content is a no-op. Different content
// yields a *NamingCollisionError, which is returned in safe mode and logged
// otherwise.
func (n *Namer) Claim(finalPath, hash string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	existing, ok := n.claimed[finalPath]
	if !ok || existing == hash {
		n.claimed[finalPath] = hash
		return nil
	}

	collision := &NamingCollisionError{Path: finalPath, ExistingHash: existing, Hash: hash}
	if n.cfg.SafeMode {
		return collision
	}

	log.Error().
		Str("path", finalPath).
		Str("existing_hash", existing).
		Str("hash", hash).
		Msg("CRITICAL: naming collision, later artifact overwrites earlier one")
	n.claimed[finalPath] = hash
	return nil
}

// Reset forgets all claimed paths, ready for the next build.
func (n *Namer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.claimed = make(map[string]string)
}

func digestHexLen(algorithm string) int {
	switch algorithm {
	case AlgorithmCRC64:
		return crc64Size * 2
	case AlgorithmSHA256:
		return sha256.Size * 2
	default:
		return 0
	}
}
