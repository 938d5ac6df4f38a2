package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cra88y/answerstream/internal/answer"
)

// stateVersion is bumped when ConversationState gains fields that older
// payloads cannot satisfy. Unknown newer versions are rejected.
const stateVersion = 1

// Keep round-tripped transcripts bounded; older turns fall off the front.
const maxPrevAnswerLen = 4000

// ErrStateInvalid reports a follow-up state that failed its integrity check.
var ErrStateInvalid = errors.New("conversation state invalid")

// ConversationState is everything needed to continue a conversation without
// server-side storage. It rides to the client inside the done event and
// comes back signed with a follow-up request; the signature is the only
// tamper protection, so the server never trusts an unverified payload.
type ConversationState struct {
	Version    int                     `json:"v"`
	Query      string                  `json:"q"`
	Lang       string                  `json:"lang,omitempty"`
	Turn       int                     `json:"turn"`
	PrevAnswer string                  `json:"prev"`
	Context    answer.GroundingContext `json:"ctx"`
}

type stateClaims struct {
	State ConversationState `json:"state"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies conversation state payloads. Unlike stream
// tokens, state carries no expiry: a conversation may be resumed as long as
// the signing secret is stable.
type StateCodec struct {
	secret []byte
}

// NewStateCodec builds a codec over the process secret.
func NewStateCodec(secret []byte) *StateCodec {
	return &StateCodec{secret: secret}
}

// Encode trims the transcript to its bounded tail and signs the state.
func (c *StateCodec) Encode(st ConversationState) (string, error) {
	st.Version = stateVersion
	if len(st.PrevAnswer) > maxPrevAnswerLen {
		st.PrevAnswer = st.PrevAnswer[len(st.PrevAnswer)-maxPrevAnswerLen:]
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{State: st})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign conversation state: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and version and returns the carried state.
func (c *StateCodec) Decode(payload string) (ConversationState, error) {
	var claims stateClaims
	parsed, err := jwt.ParseWithClaims(payload, &claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return ConversationState{}, ErrStateInvalid
	}
	if claims.State.Version <= 0 || claims.State.Version > stateVersion {
		return ConversationState{}, ErrStateInvalid
	}
	if claims.State.Query == "" {
		return ConversationState{}, ErrStateInvalid
	}
	return claims.State, nil
}
