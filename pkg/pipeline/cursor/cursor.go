// Package cursor encodes the per-stage resume state of a query pipeline
// into one opaque token a client can echo back verbatim. The token is
// versioned by pipeline shape: decoding demands exactly the stage count
// it was produced with.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedCursor marks a resume token that does not decode or does
// not match the expected pipeline shape. Bad-request class; never
// guessed at.
var ErrMalformedCursor = errors.New("malformed cursor")

// StageState is one stage's resumable position: empty (start from the
// beginning), an integer offset, or an opaque store-native token.
type StageState struct {
	Offset *int   `json:"o,omitempty"`
	Token  []byte `json:"t,omitempty"`
}

// Empty returns the initial state.
func Empty() StageState {
	return StageState{}
}

// OffsetState wraps an integer offset.
func OffsetState(n int) StageState {
	return StageState{Offset: &n}
}

// TokenState wraps a store-native paging token.
func TokenState(tok []byte) StageState {
	return StageState{Token: tok}
}

// IsEmpty reports whether the stage starts from its initial position.
func (s StageState) IsEmpty() bool {
	return s.Offset == nil && len(s.Token) == 0
}

// OffsetOr returns the offset, or def when the state carries none.
func (s StageState) OffsetOr(def int) int {
	if s.Offset == nil {
		return def
	}
	return *s.Offset
}

// Encode serializes the ordered stage states into an opaque token.
func Encode(states []StageState) (string, error) {
	b, err := json.Marshal(states)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parses a token into exactly stages states, in the order they
// were produced. An empty token yields all-initial states. Any decode
// failure or stage-count mismatch is ErrMalformedCursor.
func Decode(token string, stages int) ([]StageState, error) {
	if stages < 0 {
		return nil, fmt.Errorf("%w: negative stage count", ErrMalformedCursor)
	}
	if token == "" {
		return make([]StageState, stages), nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	var states []StageState
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if len(states) != stages {
		return nil, fmt.Errorf("%w: token has %d stage states, pipeline has %d stages", ErrMalformedCursor, len(states), stages)
	}
	return states, nil
}
