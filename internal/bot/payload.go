package bot

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
)

type Action string

const (
	ActionCorrect Action = "correct"
	ActionWrong   Action = "wrong"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// IsAnswer reports whether the action comes from an answer button, as
// opposed to an administrator override.
func (a Action) IsAnswer() bool {
	return a == ActionCorrect || a == ActionWrong
}

func (a Action) IsOverride() bool {
	return a == ActionApprove || a == ActionReject
}

// Payload is the callback data of a challenge button, "<userID>_<action>".
// The user id binds the button to the challenged member.
type Payload struct {
	UserID int64
	Action Action
}

func (p Payload) String() string {
	return fmt.Sprintf("%d_%s", p.UserID, p.Action)
}

func ParsePayload(data string) (Payload, error) {
	parts := strings.Split(data, "_")
	if len(parts) != 2 {
		return Payload{}, fmt.Errorf("%w: malformed payload %q", cerrors.ErrInvalidInput, data)
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: bad user id in payload %q", cerrors.ErrInvalidInput, data)
	}
	action := Action(parts[1])
	if !action.IsAnswer() && !action.IsOverride() {
		return Payload{}, fmt.Errorf("%w: unknown action in payload %q", cerrors.ErrInvalidInput, data)
	}
	return Payload{UserID: userID, Action: action}, nil
}

// IsChallengePayload is a cheap check used to route callbacks.
func IsChallengePayload(data string) bool {
	for _, a := range []Action{ActionCorrect, ActionWrong, ActionApprove, ActionReject} {
		if strings.HasSuffix(data, "_"+string(a)) {
			return true
		}
	}
	return false
}
