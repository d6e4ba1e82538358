// Package content classifies and normalizes the identifiers a caller can hand to a session.
package content

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Type tags how the engine should interpret an identifier payload.  Values match the engine's public enum.
type Type int

const (
	Unsupported Type = -1
	TorrentURL  Type = 0 // url of a torrent/acelive descriptor (http://, file:///)
	DirectURL   Type = 1 // direct url of a media file
	Infohash    Type = 2
	Player      Type = 3 // player content id
	Raw         Type = 4 // raw descriptor data
	Efile       Type = 5
)

var typeNames = map[Type]string{
	Unsupported: "unsupported",
	TorrentURL:  "torrent-url",
	DirectURL:   "direct-url",
	Infohash:    "infohash",
	Player:      "player",
	Raw:         "raw",
	Efile:       "efile",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType maps a type name back to its Type.  "auto" and "" map to Unsupported, which asks Classify to detect.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Unsupported, nil
	}
	for t, name := range typeNames {
		if t != Unsupported && strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return Unsupported, fmt.Errorf("%w: unknown id type %q", ErrValidation, s)
}

var (
	ErrValidation  = errors.New("invalid content id")
	ErrUnsupported = fmt.Errorf("%w: unsupported content id", ErrValidation)
)

// ID is an immutable, classified content identifier.  The zero value is Unsupported.
type ID struct {
	raw string
	typ Type
	set bool
}

func (id ID) Raw() string { return id.raw }

func (id ID) Type() Type {
	if !id.set {
		return Unsupported
	}
	return id.typ
}

// Valid reports whether the id may be submitted to the engine.
func (id ID) Valid() bool { return id.set && id.typ != Unsupported }

func (id ID) String() string {
	return id.Type().String() + ":" + id.raw
}

const acestreamScheme = "acestream://"

var torrentExtensions = []string{".torrent", ".acelive", ".acestream", ".tslive"}

// Classify tags raw with its id type.  With hint Unsupported the type is detected from the payload, otherwise the
// payload must be well formed for the hinted type.  Purely syntactic and deterministic.
func Classify(raw string, hint Type) (ID, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ID{}, fmt.Errorf("%w: empty id", ErrValidation)
	}

	switch hint {
	case Unsupported:
		return detect(value)
	case TorrentURL:
		if !isTorrentURL(value) {
			return unsupported(value), fmt.Errorf("%w: %q is not a descriptor url", ErrValidation, value)
		}
		return ID{raw: value, typ: TorrentURL, set: true}, nil
	case DirectURL:
		if !isHTTPURL(value) {
			return unsupported(value), fmt.Errorf("%w: %q is not an http url", ErrValidation, value)
		}
		return ID{raw: value, typ: DirectURL, set: true}, nil
	case Infohash:
		hash, err := NormalizeInfohash(value)
		if err != nil {
			return unsupported(value), err
		}
		return ID{raw: hash, typ: Infohash, set: true}, nil
	case Player:
		cid := strings.TrimPrefix(strings.ToLower(value), acestreamScheme)
		if !isHex40(cid) {
			return unsupported(value), fmt.Errorf("%w: %q is not a player content id", ErrValidation, value)
		}
		return ID{raw: cid, typ: Player, set: true}, nil
	case Raw:
		return ID{raw: value, typ: Raw, set: true}, nil
	case Efile:
		if strings.ContainsAny(value, " \t\r\n") {
			return unsupported(value), fmt.Errorf("%w: efile id contains whitespace", ErrValidation)
		}
		return ID{raw: value, typ: Efile, set: true}, nil
	default:
		return unsupported(value), fmt.Errorf("%w: unknown id type %d", ErrValidation, int(hint))
	}
}

func detect(value string) (ID, error) {
	lower := strings.ToLower(value)

	if strings.HasPrefix(lower, "magnet:") || len(value) == 32 {
		if hash, err := NormalizeInfohash(value); err == nil {
			return ID{raw: hash, typ: Infohash, set: true}, nil
		}
	}
	if cid := strings.TrimPrefix(lower, acestreamScheme); isHex40(cid) {
		return ID{raw: cid, typ: Player, set: true}, nil
	}
	if isTorrentURL(value) && hasTorrentExtension(value) {
		return ID{raw: value, typ: TorrentURL, set: true}, nil
	}
	if isHTTPURL(value) {
		return ID{raw: value, typ: DirectURL, set: true}, nil
	}
	return unsupported(value), fmt.Errorf("%w: %q", ErrUnsupported, value)
}

func unsupported(value string) ID {
	return ID{raw: value, typ: Unsupported, set: true}
}

// NormalizeInfohash accepts a hex or base32 infohash, optionally wrapped in a magnet link or urn prefix, and returns
// it as 40 lower-case hex characters.
func NormalizeInfohash(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(value), "magnet:") {
		u, err := url.Parse(value)
		if err != nil {
			return "", fmt.Errorf("%w: malformed magnet link: %v", ErrValidation, err)
		}
		value = ""
		for _, xt := range u.Query()["xt"] {
			if strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
				value = xt
				break
			}
		}
	}
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")

	switch {
	case isHex40(value):
		return value, nil
	case len(value) == 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(value))
		if err != nil || len(decoded) != 20 {
			break
		}
		return hex.EncodeToString(decoded), nil
	}
	return "", fmt.Errorf("%w: %q is not an infohash", ErrValidation, raw)
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isTorrentURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return u.Host != ""
	case "file":
		return u.Path != ""
	}
	return false
}

func hasTorrentExtension(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, known := range torrentExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
