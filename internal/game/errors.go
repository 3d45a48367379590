package game

import "errors"

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	default:
		return "INTERNAL"
	}
}

// Error is a battle failure returned to the single caller of an operation.
// Session state is never modified when one is returned.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	// Validation
	ErrInvalidPosition = newError(KindValidation, "INVALID_POSITION", "position out of range")
	ErrInvalidMode     = newError(KindValidation, "INVALID_MODE", "mode must be ATTACK or DEFENSE")
	ErrInvalidAction   = newError(KindValidation, "INVALID_ACTION", "action must be SWITCH_MODE or ATTACK")
	ErrInvalidOpponent = newError(KindValidation, "INVALID_OPPONENT", "cannot create a game against yourself")
	ErrMissingPlayer   = newError(KindValidation, "MISSING_PLAYER", "player id is required")
	ErrMalformed       = newError(KindValidation, "MALFORMED_REQUEST", "malformed request")

	// Conflict
	ErrGameNotWaiting      = newError(KindConflict, "GAME_NOT_WAITING", "game is not waiting for players")
	ErrGameNotInProgress   = newError(KindConflict, "GAME_NOT_IN_PROGRESS", "game is not in progress")
	ErrAlreadyInGame       = newError(KindConflict, "ALREADY_IN_GAME", "you are already in this game")
	ErrNoCardsToPlay       = newError(KindConflict, "NO_CARDS_TO_PLAY", "you have no cards to play")
	ErrNotYourTurn         = newError(KindConflict, "NOT_YOUR_TURN", "not your turn")
	ErrCardNotInHand       = newError(KindConflict, "CARD_NOT_IN_HAND", "card not in hand")
	ErrPositionOccupied    = newError(KindConflict, "POSITION_OCCUPIED", "position already occupied")
	ErrAlreadyActed        = newError(KindConflict, "ALREADY_ACTED", "card has already acted this turn")
	ErrCannotAttackOwnCard = newError(KindConflict, "CANNOT_ATTACK_OWN_CARD", "cannot attack your own card")
	ErrBlockedByCards      = newError(KindConflict, "BLOCKED_BY_CARDS", "cannot attack player directly while they have cards on the board")
	ErrAlreadyFinished     = newError(KindConflict, "ALREADY_FINISHED", "game already finished")

	// Not found
	ErrGameNotFound   = newError(KindNotFound, "GAME_NOT_FOUND", "game not found")
	ErrCardNotFound   = newError(KindNotFound, "CARD_NOT_FOUND", "card not found on board")
	ErrTargetNotFound = newError(KindNotFound, "TARGET_NOT_FOUND", "target card not found")

	// Forbidden
	ErrNotYourCard     = newError(KindForbidden, "NOT_YOUR_CARD", "not your card")
	ErrNotAParticipant = newError(KindForbidden, "NOT_A_PARTICIPANT", "you are not a participant in this game")

	// ErrEmptyCollection is returned by BuildDeck alongside an empty deck.
	// Callers translate it; it never reaches a transport as-is.
	ErrEmptyCollection = newError(KindValidation, "EMPTY_COLLECTION", "collection yields no cards")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
