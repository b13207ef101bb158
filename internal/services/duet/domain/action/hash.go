package action

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type canonicalEnvelope struct {
	SessionID   string          `json:"session_id"`
	Seq         uint64          `json:"seq"`
	Type        Type            `json:"type"`
	ActorID     string          `json:"actor_id"`
	RequestID   string          `json:"request_id"`
	Command     string          `json:"command"`
	TimestampMS int64           `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
}

type chainEnvelope struct {
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

func canonicalBytes(a Action) ([]byte, error) {
	payload := a.PayloadJSON
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return nil, fmt.Errorf("compact payload: %w", err)
	}
	return json.Marshal(canonicalEnvelope{
		SessionID:   a.SessionID,
		Seq:         a.Seq,
		Type:        a.Type,
		ActorID:     a.ActorID,
		RequestID:   a.RequestID,
		Command:     a.Command,
		TimestampMS: a.Timestamp.UTC().UnixMilli(),
		Payload:     compact.Bytes(),
	})
}

// Hash returns the content hash of a sequenced action.
func Hash(a Action) (string, error) {
	data, err := canonicalBytes(a)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash links an action's content hash to its predecessor's chain hash.
func ChainHash(a Action, prevChainHash string) (string, error) {
	hash, err := Hash(a)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(chainEnvelope{PrevHash: prevChainHash, Hash: hash})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal fills Hash, PrevHash and ChainHash on a sequenced action.
func Seal(a Action, prevChainHash string) (Action, error) {
	if a.Seq == 0 {
		return Action{}, fmt.Errorf("action seq is required")
	}
	hash, err := Hash(a)
	if err != nil {
		return Action{}, fmt.Errorf("compute hash: %w", err)
	}
	chain, err := ChainHash(a, prevChainHash)
	if err != nil {
		return Action{}, fmt.Errorf("compute chain hash: %w", err)
	}
	a.Hash = hash
	a.PrevHash = prevChainHash
	a.ChainHash = chain
	return a, nil
}

// ChainError describes the first action whose stored hashes do not verify.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("action chain broken at seq %d: %s", e.Seq, e.Reason)
}

// VerifyChain checks that actions form a gapless, correctly hashed chain
// starting at seq 1.
func VerifyChain(actions []Action) error {
	prev := ""
	for i, a := range actions {
		want := uint64(i + 1)
		if a.Seq != want {
			return &ChainError{Seq: a.Seq, Reason: fmt.Sprintf("expected seq %d", want)}
		}
		if a.PrevHash != prev {
			return &ChainError{Seq: a.Seq, Reason: "prev hash mismatch"}
		}
		hash, err := Hash(a)
		if err != nil {
			return &ChainError{Seq: a.Seq, Reason: err.Error()}
		}
		if hash != a.Hash {
			return &ChainError{Seq: a.Seq, Reason: "content hash mismatch"}
		}
		chain, err := ChainHash(a, prev)
		if err != nil {
			return &ChainError{Seq: a.Seq, Reason: err.Error()}
		}
		if chain != a.ChainHash {
			return &ChainError{Seq: a.Seq, Reason: "chain hash mismatch"}
		}
		prev = a.ChainHash
	}
	return nil
}
