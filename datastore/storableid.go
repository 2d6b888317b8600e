package datastore

import (
	"encoding/base64"
	"strings"

	"github.com/zeebo/blake3"
)

// StorableID is a document identifier in the datastore. Metadata records
// use identifiers derived from their identifying fields so that repeated
// observations of the same entity upsert one document instead of creating
// duplicates; message identifiers are store-assigned.
type StorableID string

// idSeparator joins identifying fields before hashing. Identical to the
// fields' on-wire delimiter so the derivation is stable across processes.
const idSeparator = "|"

// DeriveID computes a deterministic identifier from identifying fields.
// Two derivations with identical fields always produce the same identifier;
// any difference in a field changes it with overwhelming probability.
func DeriveID(fields ...string) StorableID {
	sum := blake3.Sum256([]byte(strings.Join(fields, idSeparator)))
	return StorableID(base64.RawURLEncoding.EncodeToString(sum[:]))
}

// String returns the identifier as a plain string
func (id StorableID) String() string {
	return string(id)
}
