package auth

import (
	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
)

const (
	InvalidCredentialsMsg = "Invalid username or password"
	UserBlockedMsg        = "This account has been blocked"
	DuplicateUsernameMsg  = "That username is already taken"
	UserNotFoundMsg       = "User not found"
	UnavailableMsg        = "The service is temporarily unavailable, please try again"
	NotLoggedInMsg        = "Please log in to continue"
	AccountRemovedMsg     = "Your account no longer exists"
	UnexpectedMsg         = "Something went wrong"
)

// ErrorMessage converts an error from the auth or user services into a message that is safe to show a user.
func ErrorMessage(err error) string {
	var verr *apperrors.ValidationError
	switch {
	case err == nil:
		return ""
	case apperrors.As(err, &verr):
		return verr.Message
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return InvalidCredentialsMsg
	case apperrors.Is(err, apperrors.ErrUserBlocked):
		return UserBlockedMsg
	case apperrors.Is(err, apperrors.ErrDuplicateUsername):
		return DuplicateUsernameMsg
	case apperrors.Is(err, apperrors.ErrNotFound):
		return UserNotFoundMsg
	case apperrors.Is(err, apperrors.ErrStoreUnavailable):
		return UnavailableMsg
	}
	return UnexpectedMsg
}
