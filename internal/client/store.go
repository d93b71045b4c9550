// Package client is the installation-side half of the metering handshake:
// it keeps the random client token and the cached device signature, and
// attaches both to every metered request.
package client

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/fingerprint"
)

// Meta is the out-of-band identification block the gateway strips before
// forwarding. Field names match the wire format.
type Meta struct {
	ClientUUID        string `json:"clientUuid"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	ParallelCount     int64  `json:"parallelCount,omitempty"`
}

type state struct {
	ClientToken string `json:"client_token"`
}

// Store persists the installation token and resolves the current device
// signature. The token is generated exactly once and survives signature
// refreshes.
type Store struct {
	path       string
	signatures *fingerprint.CachedGenerator
}

func NewStore(dir string, signatures *fingerprint.CachedGenerator) *Store {
	return &Store{
		path:       filepath.Join(dir, "identity.json"),
		signatures: signatures,
	}
}

// Meta returns the identification block for one request, creating the client
// token on first use and refreshing the signature when its TTL has lapsed.
func (s *Store) Meta(parallelCount int64) (Meta, error) {
	token, err := s.clientToken()
	if err != nil {
		return Meta{}, err
	}

	signature, err := s.signatures.Signature()
	if err != nil {
		return Meta{}, err
	}

	return Meta{
		ClientUUID:        token,
		DeviceFingerprint: signature,
		ParallelCount:     parallelCount,
	}, nil
}

func (s *Store) clientToken() (string, error) {
	if data, err := os.ReadFile(s.path); err == nil {
		var st state
		if err := json.Unmarshal(data, &st); err == nil && st.ClientToken != "" {
			return st.ClientToken, nil
		}
	}

	st := state{ClientToken: uuid.NewString()}
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return "", err
	}

	return st.ClientToken, nil
}
