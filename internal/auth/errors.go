package auth

// Kind classifies credential store failures for callers that map them to a transport.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
)

// Error is a credential store failure carrying the human-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidInput       = &Error{Kind: KindInvalid, Message: "Username, email and password are required."}
	ErrInvalidStatus      = &Error{Kind: KindInvalid, Message: "Unknown account status."}
	ErrDuplicateUsername  = &Error{Kind: KindConflict, Message: "Username already exists."}
	ErrDuplicateEmail     = &Error{Kind: KindConflict, Message: "Email already registered."}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "Invalid username or password."}
	ErrPendingApproval    = &Error{Kind: KindForbidden, Message: "Account pending approval. Please contact the administrator."}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Message: "User not found."}
)

const (
	SignupMessage = "Signup successful! Please wait for administrator approval."
	LoginMessage  = "Login successful."
)
