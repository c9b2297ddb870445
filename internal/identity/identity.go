// File: internal/identity/identity.go

// Package identity manages each agent's Ed25519 keypair and the attestation
// string format that binds signal content to its producer.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// AttestationPrefix tags the signing scheme in the attestation string.
const AttestationPrefix = "ed25519"

// Identity holds one agent's keypair. The private key never leaves the
// process; only the hex public key and fingerprint are exposed.
type Identity struct {
	AgentID   string
	publicKey ed25519.PublicKey
	privKey   ed25519.PrivateKey
	CreatedAt time.Time
}

// New generates a fresh keypair for the given agent id.
func New(agentID string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Identity{
		AgentID:   agentID,
		publicKey: pub,
		privKey:   priv,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// LoadOrGenerate loads a keypair from path, or generates and saves one if
// the file does not exist. The file format is the raw 64-byte Ed25519
// private key (which embeds the public key in its last 32 bytes).
func LoadOrGenerate(agentID, path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid key file: expected %d bytes, got %d", ed25519.PrivateKeySize, len(data))
		}
		priv := ed25519.PrivateKey(data)
		return &Identity{
			AgentID:   agentID,
			publicKey: priv.Public().(ed25519.PublicKey),
			privKey:   priv,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	id, err := New(agentID)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(id.privKey), 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return id, nil
}

// PublicKeyHex returns the hex-encoded 32-byte public key.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.publicKey)
}

// Fingerprint returns the first 16 hex chars of sha256(publicKeyHex).
func (id *Identity) Fingerprint() string {
	return FingerprintOf(id.PublicKeyHex())
}

// FingerprintOf derives the fingerprint for an arbitrary hex public key.
func FingerprintOf(publicKeyHex string) string {
	sum := sha256.Sum256([]byte(publicKeyHex))
	return hex.EncodeToString(sum[:])[:16]
}

// signingPayload is the canonical byte string covered by an attestation.
func signingPayload(content, producerID string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", content, producerID, timestamp))
}

// BuildAttestation signs content|producerId|timestamp and returns the
// attestation string "ed25519:<sigHex>:<pubHex>".
func (id *Identity) BuildAttestation(content, producerID string, timestamp int64) string {
	sig := ed25519.Sign(id.privKey, signingPayload(content, producerID, timestamp))
	return fmt.Sprintf("%s:%s:%s", AttestationPrefix, hex.EncodeToString(sig), id.PublicKeyHex())
}

// VerifyAttestation recomputes the payload, parses the three
// colon-separated fields, and verifies the signature. Verification is
// advisory: callers never remove a signal on failure.
func VerifyAttestation(attestation, content, producerID string, timestamp int64) schemas.VerificationResult {
	parts := strings.Split(attestation, ":")
	if len(parts) != 3 || parts[0] != AttestationPrefix {
		return schemas.VerificationResult{Valid: false, Reason: "malformed attestation"}
	}

	sig, err := hex.DecodeString(parts[1])
	if err != nil || len(sig) != ed25519.SignatureSize {
		return schemas.VerificationResult{Valid: false, Reason: "malformed signature"}
	}
	pub, err := hex.DecodeString(parts[2])
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return schemas.VerificationResult{Valid: false, Reason: "malformed public key"}
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), signingPayload(content, producerID, timestamp), sig) {
		return schemas.VerificationResult{
			Valid:       false,
			PublicKey:   parts[2],
			Fingerprint: FingerprintOf(parts[2]),
			Reason:      "signature mismatch",
		}
	}

	return schemas.VerificationResult{
		Valid:       true,
		PublicKey:   parts[2],
		Fingerprint: FingerprintOf(parts[2]),
	}
}

// VerifySignal checks a signal's attestation against its own fields.
func VerifySignal(s schemas.Signal) schemas.VerificationResult {
	return VerifyAttestation(s.Attestation, s.Content, s.ProducerID, s.Timestamp)
}
