// Package mip004 implements the MIP-004 hash binding scheme: two SHA-256
// digests that tie a purchaser identity, an input payload, and an output
// payload into a single verifiable decision hash.
//
// The digests must be byte-identical across implementations in any language;
// third-party verifiers recompute them independently. Input payloads are
// therefore reduced to RFC 8785 canonical JSON before hashing, and the
// purchaser identifier is joined to the payload with a ";" delimiter so that
// shifting bytes across the field boundary always changes the pre-image.
package mip004

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// HashInput canonicalizes input (which must be valid JSON) per RFC 8785 and
// returns the lowercase hex SHA-256 of "purchaserID;canonicalForm".
func HashInput(purchaserID string, input []byte) (string, error) {
	canonical, err := jcs.Transform(input)
	if err != nil {
		return "", fmt.Errorf("canonicalize input: %w", err)
	}
	return digest(purchaserID, string(canonical)), nil
}

// HashOutput returns the lowercase hex SHA-256 of "purchaserID;output". The
// output is used byte-for-byte: the caller has already serialized it, and
// re-canonicalizing would break verification against the submitted bytes.
func HashOutput(purchaserID, output string) string {
	return digest(purchaserID, output)
}

// DecisionHash is the value submitted to the settlement service: the two
// digests concatenated, 128 hex characters.
func DecisionHash(inputDigest, outputDigest string) string {
	return inputDigest + outputDigest
}

func digest(purchaserID, payload string) string {
	sum := sha256.Sum256([]byte(purchaserID + ";" + payload))
	return hex.EncodeToString(sum[:])
}
