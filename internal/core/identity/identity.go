// Package identity derives deterministic node identifiers from natural keys.
//
// A natural key is a DOI, a short name or a taxonomy term. The identifier is
// a version-5 UUID over the DNS namespace, so the same key yields the same
// globalId in every process and in every language that implements RFC 4122.
package identity

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that cannot be used as identity input.
var ErrInvalidKey = errors.New("invalid natural key")

// Namespace is fixed forever. Changing it re-keys the whole graph.
var Namespace = uuid.NameSpaceDNS

// Identity is the resolved globalId of a natural key.
type Identity struct {
	Key      string
	GlobalID string
}

func (i Identity) String() string { return i.GlobalID }

// Resolve computes the identity of key. The empty string is accepted and
// yields a well-formed identifier.
func Resolve(key string) (Identity, error) {
	if !utf8.ValidString(key) {
		return Identity{}, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
	}
	return Identity{Key: key, GlobalID: uuid.NewSHA1(Namespace, []byte(key)).String()}, nil
}

// ResolveOptional resolves a key that may be absent in the source document.
func ResolveOptional(key *string) (Identity, error) {
	if key == nil {
		return Identity{}, fmt.Errorf("%w: key is missing", ErrInvalidKey)
	}
	return Resolve(*key)
}

// MustResolve panics on invalid input. Use only with literal keys.
func MustResolve(key string) Identity {
	id, err := Resolve(key)
	if err != nil {
		panic(err)
	}
	return id
}

// GlobalID is shorthand for MustResolve(key).GlobalID. Keys read from
// untrusted input go through Resolve so they can be skipped and counted.
func GlobalID(key string) string {
	return MustResolve(key).GlobalID
}
