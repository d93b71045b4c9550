package fingerprint

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signatureFormat = regexp.MustCompile(`^[0-9a-f]{32}$`)

func constSignal(name, value string) Signal {
	return Signal{Name: name, Sample: func() (string, error) { return value, nil }}
}

func TestGenerateIsStable(t *testing.T) {
	g := New()

	first := g.Generate()
	second := g.Generate()

	assert.Equal(t, first, second, "same host must yield the same signature")
	assert.Regexp(t, signatureFormat, first)
}

func TestGenerateFormat(t *testing.T) {
	g := New(constSignal("a", "alpha"), constSignal("b", "beta"))

	signature := g.Generate()
	assert.Len(t, signature, SignatureLength)
	assert.Regexp(t, signatureFormat, signature)
}

func TestGenerateOrderMatters(t *testing.T) {
	forward := New(constSignal("a", "alpha"), constSignal("b", "beta")).Generate()
	reversed := New(constSignal("b", "beta"), constSignal("a", "alpha")).Generate()

	assert.NotEqual(t, forward, reversed)
}

func TestGenerateDegradesFailedSignals(t *testing.T) {
	failing := Signal{Name: "broken", Sample: func() (string, error) {
		return "", errors.New("no display")
	}}
	panicking := Signal{Name: "worse", Sample: func() (string, error) {
		panic("driver crash")
	}}
	empty := constSignal("empty", "")

	g := New(constSignal("ok", "value"), failing, panicking, empty)

	signature := g.Generate()
	assert.Regexp(t, signatureFormat, signature, "degraded signals still produce a valid signature")

	// Every degraded signal collapses to the same sentinel, so the three
	// broken variants are interchangeable.
	same := New(constSignal("ok", "value"), empty, empty, empty).Generate()
	assert.Equal(t, signature, same)
}

func TestGenerateAllSignalsFailed(t *testing.T) {
	g := New(
		Signal{Name: "a", Sample: func() (string, error) { return "", errors.New("nope") }},
		Signal{Name: "b", Sample: func() (string, error) { panic("nope") }},
	)

	signature := g.Generate()
	assert.Regexp(t, signatureFormat, signature)
}

func TestDefaultSignalsAllSample(t *testing.T) {
	for _, sig := range DefaultSignals() {
		t.Run(sig.Name, func(t *testing.T) {
			value := sample(sig)
			require.NotEmpty(t, value)
		})
	}
}
