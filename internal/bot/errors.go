package bot

import (
	"errors"
	"fmt"
	"net"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
)

var (
	messageGoneMarkers = []string{
		"message to edit not found",
		"message to delete not found",
		"message can't be deleted",
		"message can't be edited",
		"message_id_invalid",
	}
	insufficientRightMarkers = []string{
		"not enough rights",
		"have no rights",
		"chat_admin_required",
		"need administrator rights",
		"can't remove chat owner",
		"user is an administrator of the chat",
		"can't restrict self",
		"method is available only for supergroups",
		"bot is not a member",
		"bot was kicked",
	}
	transientMarkers = []string{
		"too many requests",
		"retry after",
		"timeout",
		"bad gateway",
		"internal server error",
		"connection reset",
		"eof",
	}
)

// classifyError maps a Telegram error onto the error taxonomy. Unknown
// errors are returned as is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "message is not modified") {
		return nil
	}

	wrap := func(kind error) error {
		return fmt.Errorf("%w: %s", kind, err.Error())
	}
	for _, marker := range messageGoneMarkers {
		if strings.Contains(text, marker) {
			return wrap(cerrors.ErrMessageNotFound)
		}
	}
	for _, marker := range insufficientRightMarkers {
		if strings.Contains(text, marker) {
			return wrap(cerrors.ErrInsufficientRight)
		}
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code >= 500) {
		return wrap(cerrors.ErrPlatformTransient)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(cerrors.ErrPlatformTransient)
	}
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return wrap(cerrors.ErrPlatformTransient)
		}
	}
	return err
}
