package message

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// fingerprintVersion is prepended to the canonical form before hashing so that
// a change to the canonicalization produces a disjoint set of fingerprints.
const fingerprintVersion = "v2:"

// Fingerprint returns the identity of a message, used to de-duplicate pushes.
//
// It is a 128-bit murmur3 hash, hex encoded, of the message's canonical JSON
// form with all object keys sorted and the attributes removed. Two messages
// that differ only in their attributes have the same fingerprint.
func Fingerprint(m Message) (string, error) {
	data, err := canonicalize(m)
	if err != nil {
		return "", fmt.Errorf("unable to fingerprint %s message: %w", m.Kind, err)
	}

	h1, h2 := murmur3.Sum128(data)

	var sum [16]byte
	binary.LittleEndian.PutUint64(sum[:8], h1)
	binary.LittleEndian.PutUint64(sum[8:], h2)

	return hex.EncodeToString(sum[:]), nil
}

// MustFingerprint returns the fingerprint of m. It panics if m can not be
// marshaled.
func MustFingerprint(m Message) string {
	fp, err := Fingerprint(m)
	if err != nil {
		panic(err)
	}

	return fp
}

// canonicalize returns the versioned canonical JSON form of m that is hashed
// to produce its fingerprint.
func canonicalize(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	// Decoding into a generic map discards the struct's field order; maps are
	// re-encoded with sorted keys at every level. UseNumber() keeps numeric
	// literals exactly as written.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	delete(doc, "attributes")

	data, err = json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	return append([]byte(fingerprintVersion), data...), nil
}
