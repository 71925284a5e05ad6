// Package services holds the business logic for sessions, conversations,
// history, prescription analysis, and accounts. This file centralizes the
// service-level error values and their classification so that handlers can
// translate them into HTTP results through a single table.
package services

import "errors"

// Kind classifies a service error independently of any transport.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Session and message errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrForbidden is returned when a user addresses a session or history
	// that belongs to someone else.
	ErrForbidden = errors.New("access to this resource is forbidden")

	// ErrUserNotFound is returned when a user identifier does not resolve to
	// an existing account.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyMessage is returned when a chat message is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a chat message exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidRole is returned when a message role is not "user" or "ai".
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEmptyQuery is returned when a history search has no terms.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Upload errors.
var (
	ErrEmptyUpload    = errors.New("uploaded file is empty")
	ErrNotAnImage     = errors.New("uploaded file is not an image")
	ErrUploadTooLarge = errors.New("uploaded file is too large")
)

// Account errors.
var (
	// ErrEmailTaken is returned by Signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailNotVerified is returned by Login when verification is required.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrInvalidVerificationToken is returned by Verify for unknown tokens.
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")

	// ErrInvalidSignup is returned when signup fields are missing or malformed.
	ErrInvalidSignup = errors.New("username, valid email and password are required")

	// ErrPasswordTooLong is returned when a password exceeds the hasher limit.
	ErrPasswordTooLong = errors.New("password is too long")

	// ErrUnauthenticated is returned when a bearer token is missing, invalid,
	// or names an account that no longer exists.
	ErrUnauthenticated = errors.New("authentication required")
)

var kinds = map[error]Kind{
	ErrSessionNotFound:          KindNotFound,
	ErrForbidden:                KindForbidden,
	ErrUserNotFound:             KindInvalidArgument,
	ErrEmptyMessage:             KindInvalidArgument,
	ErrTooLong:                  KindInvalidArgument,
	ErrInvalidRole:              KindInvalidArgument,
	ErrEmptyQuery:               KindInvalidArgument,
	ErrEmptyUpload:              KindInvalidArgument,
	ErrNotAnImage:               KindInvalidArgument,
	ErrUploadTooLarge:           KindInvalidArgument,
	ErrEmailTaken:               KindConflict,
	ErrInvalidCredentials:       KindUnauthorized,
	ErrEmailNotVerified:         KindForbidden,
	ErrInvalidVerificationToken: KindInvalidArgument,
	ErrInvalidSignup:            KindInvalidArgument,
	ErrPasswordTooLong:          KindInvalidArgument,
	ErrUnauthenticated:          KindUnauthorized,
}

// KindOf classifies err. Wrapped sentinels are recognized; anything else is
// KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for sentinel, k := range kinds {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindInternal
}
