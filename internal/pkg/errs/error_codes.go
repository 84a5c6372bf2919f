/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server
and in communication with clients, over HTTP responses and WebSocket error events alike.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrFeatureDisabled indicates that the endpoint depends on a service this deployment has not configured.
	ErrFeatureDisabled = 1008
)

// 2xxx: Messaging and Content Errors
const (
	// ErrMessageContentTooLong indicates that a stored message field exceeded its column limit.
	ErrMessageContentTooLong = 2201

	// ErrImageTooLarge indicates that an encoded image exceeded the relay's size limit.
	ErrImageTooLarge = 2202

	// ErrInvalidParticipants indicates that the sender or receiver does not reference an existing user.
	ErrInvalidParticipants = 2203

	// ErrFileSizeTooLarge indicates that a presigned upload was requested for an oversized file.
	ErrFileSizeTooLarge = 2301

	// ErrFileTypeInvalid indicates that a presigned upload was requested for a disallowed file type.
	ErrFileTypeInvalid = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid.
	ErrPowChallengeInvalid = 3002

	// ErrInvalidDisplayName indicates an empty or oversized display name.
	ErrInvalidDisplayName = 3101

	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = 3102

	// ErrInvalidPassword indicates a password outside the accepted length.
	ErrInvalidPassword = 3103

	// ErrEmailAlreadyExists indicates that the email is registered to another account.
	ErrEmailAlreadyExists = 3104

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3105

	// ErrUserNotFound indicates that the addressed account does not exist.
	ErrUserNotFound = 3106

	// ErrInvalidAvatarKey indicates an avatar key that is neither a preset nor owned by the caller.
	ErrInvalidAvatarKey = 3107

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3401
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrSchemaOutOfSync indicates that the database schema does not match what the server expects.
	ErrSchemaOutOfSync = 5001

	// ErrMessageSendFailed indicates an unclassified failure while persisting a message.
	ErrMessageSendFailed = 5002

	// ErrFileStorageFailed indicates that the object storage backend rejected the request.
	ErrFileStorageFailed = 5003
)
