// Package fingerprint derives a stable device signature from weak entropy
// signals. The signature is an abuse-resistance heuristic, not an identifier
// with any cryptographic strength: it only needs to stay stable for one
// machine across reinstalls of the client.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureLength is the number of hex characters kept from the digest.
const SignatureLength = 32

// sentinel replaces any signal that fails or panics. Partial entropy is
// acceptable; aborting generation is not.
const sentinel = "unavailable"

// Signal is one entropy source. Sample may fail or panic freely; the
// generator degrades it to a fixed sentinel either way.
type Signal struct {
	Name   string
	Sample func() (string, error)
}

type Generator struct {
	signals []Signal
}

// New builds a generator over the given signals, in order. Order matters:
// the concatenation is part of the value. With no arguments the default
// host-environment signal set is used.
func New(signals ...Signal) *Generator {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	return &Generator{signals: signals}
}

// Generate samples every signal, joins the results in fixed order and returns
// the first 32 hex characters of the SHA-256 digest.
func (g *Generator) Generate() string {
	parts := make([]string, 0, len(g.signals))
	for _, sig := range g.signals {
		parts = append(parts, sample(sig))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:SignatureLength]
}

func sample(sig Signal) (out string) {
	defer func() {
		if recover() != nil {
			out = sentinel
		}
	}()

	value, err := sig.Sample()
	if err != nil || value == "" {
		return sentinel
	}
	return value
}
