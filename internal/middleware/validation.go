package middleware

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

const (
	maxMessageBytes   = 100000
	maxSessionIDBytes = 128
)

// ValidateMessageContent validates chat message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return model.Invalid("message", "cannot be empty")
	}
	if len(content) > maxMessageBytes {
		return model.Invalid("message", "exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return model.Invalid("message", "must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a client-chosen session id. Ids are used as
// stream subject tokens, so only letters, digits, '-' and '_' are allowed
// and at least one must be a letter or digit.
func ValidateSessionID(id string) error {
	if id == "" {
		return model.Invalid("session_id", "is required")
	}
	if len(id) > maxSessionIDBytes {
		return model.Invalid("session_id", "exceeds maximum length")
	}
	alnum := false
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			alnum = true
		case c == '-' || c == '_':
		default:
			return model.Invalid("session_id", "may only contain letters, digits, '-' and '_'")
		}
	}
	if !alnum {
		return model.Invalid("session_id", "must contain a letter or digit")
	}
	return nil
}

// ValidateUUID validates an identifier issued by the server.
func ValidateUUID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.Invalid(field, "must be a UUID")
	}
	return nil
}
