package naming

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenName
	tokenExt
	tokenPath
	tokenHash
)

type token struct {
	kind     tokenKind
	literal  string
	encoding string
	length   int
}

// ValidateTemplate reports whether template only uses known placeholders.
func ValidateTemplate(template string) error {
	_, err := parseTemplate(template)
	return err
}

// HasHash reports whether template embeds a content digest.
func HasHash(template string) bool {
	tokens, err := parseTemplate(template)
	if err != nil {
		return false
	}
	for _, t := range tokens {
		if t.kind == tokenHash {
			return true
		}
	}
	return false
}

// parseTemplate splits template into literals and placeholders. Supported
// placeholders are [name], [ext], [path], [hash], [chunkhash], [contenthash]
// and the hash forms [hash:N] and [hash:<hex|base58|base64>:N].
func parseTemplate(template string) ([]token, error) {
	if template == "" {
		return nil, fmt.Errorf("empty name template")
	}

	var tokens []token
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			tokens = append(tokens, token{kind: tokenLiteral, literal: rest})
			break
		}
		if open > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			return nil, fmt.Errorf("template %q: unterminated placeholder", template)
		}
		tok, err := parsePlaceholder(rest[open+1 : open+end])
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", template, err)
		}
		tokens = append(tokens, tok)
		rest = rest[open+end+1:]
	}
	return tokens, nil
}

func parsePlaceholder(body string) (token, error) {
	parts := strings.Split(body, ":")
	switch parts[0] {
	case "name":
		return token{kind: tokenName}, nil
	case "ext":
		return token{kind: tokenExt}, nil
	case "path":
		return token{kind: tokenPath}, nil
	case "hash", "chunkhash", "contenthash":
	default:
		return token{}, fmt.Errorf("unknown placeholder [%s]", body)
	}

	tok := token{kind: tokenHash, encoding: "hex"}
	switch len(parts) {
	case 1:
	case 2:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return token{}, fmt.Errorf("invalid hash length in [%s]", body)
		}
		tok.length = n
	case 3:
		switch parts[1] {
		case "hex", "base58", "base64":
			tok.encoding = parts[1]
		default:
			return token{}, fmt.Errorf("unknown digest encoding %q in [%s]", parts[1], body)
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 {
			return token{}, fmt.Errorf("invalid hash length in [%s]", body)
		}
		tok.length = n
	default:
		return token{}, fmt.Errorf("malformed placeholder [%s]", body)
	}
	return tok, nil
}

func (n *Namer) render(tokens []token, content []byte, logicalName string) string {
	dir, file := path.Split(logicalName)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)

	var digest []byte
	out := make([]byte, 0, len(logicalName)+16)
	for _, t := range tokens {
		switch t.kind {
		case tokenLiteral:
			out = append(out, t.literal...)
		case tokenName:
			out = append(out, stem...)
		case tokenExt:
			if ext == "" {
				// LICENSE stays LICENSE, not LICENSE.
				out = bytes.TrimSuffix(out, []byte("."))
				continue
			}
			out = append(out, ext[1:]...)
		case tokenPath:
			out = append(out, dir...)
		case tokenHash:
			if digest == nil {
				digest = n.Digest(content)
			}
			length := t.length
			if length == 0 {
				length = n.cfg.Length
			}
			out = append(out, truncate(encodeDigest(digest, t.encoding), length)...)
		}
	}
	return string(out)
}

func encodeDigest(digest []byte, encoding string) string {
	switch encoding {
	case "base58":
		return base58.Encode(digest)
	case "base64":
		return base64.RawURLEncoding.EncodeToString(digest)
	default:
		return hex.EncodeToString(digest)
	}
}

func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	return s[:n]
}
