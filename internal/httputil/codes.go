package httputil

// Machine-readable error codes returned alongside error messages so clients
// don't have to parse human-readable text.
const (
	CodeInvalidRequestBody   = "INVALID_REQUEST_BODY"
	CodeMissingCredentials   = "MISSING_CREDENTIALS"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeMissingAuth          = "MISSING_AUTH"
	CodeInvalidAuthHeader    = "INVALID_AUTH_HEADER"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeEmailRequired        = "EMAIL_REQUIRED"
	CodeUsernameRequired     = "USERNAME_REQUIRED"
	CodePasswordRequired     = "PASSWORD_REQUIRED"
	CodePasswordTooShort     = "PASSWORD_TOO_SHORT"
	CodeInvalidEmailFormat   = "INVALID_EMAIL_FORMAT"
	CodeEmailAlreadyExists   = "EMAIL_ALREADY_EXISTS"
	CodeUsernameAlreadyExists = "USERNAME_ALREADY_EXISTS"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeInvalidResetToken    = "INVALID_OR_EXPIRED_RESET_TOKEN"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeInvalidUpload        = "INVALID_UPLOAD"
	CodeInternalError        = "INTERNAL_ERROR"
)
