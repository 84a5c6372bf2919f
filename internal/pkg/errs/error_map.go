package errs

import "net/http"

// errorMap stores the template CustomError for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrFeatureDisabled:       {Code: ErrFeatureDisabled, Message: "This feature is not available.", Status: http.StatusNotImplemented},

	// 2xxx: Messaging and Content Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrImageTooLarge:         {Code: ErrImageTooLarge, Message: "Image is too large. Please choose a smaller image."},
	ErrInvalidParticipants:   {Code: ErrInvalidParticipants, Message: "Invalid sender/receiver. Please re-login and try again."},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Message: "Unsupported file type.", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusForbidden},
	ErrInvalidDisplayName:   {Code: ErrInvalidDisplayName, Message: "Display name cannot be empty.", Status: http.StatusBadRequest},
	ErrInvalidEmail:         {Code: ErrInvalidEmail, Message: "Invalid email address.", Status: http.StatusBadRequest},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Password must be between %d and %d characters.", Status: http.StatusBadRequest},
	ErrEmailAlreadyExists:   {Code: ErrEmailAlreadyExists, Message: "Email already exists.", Status: http.StatusConflict},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Invalid credentials.", Status: http.StatusUnauthorized},
	ErrUserNotFound:         {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusNotFound},
	ErrInvalidAvatarKey:     {Code: ErrInvalidAvatarKey, Message: "Invalid avatar.", Status: http.StatusBadRequest},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrSchemaOutOfSync:   {Code: ErrSchemaOutOfSync, Message: "Database schema is out of sync. Please contact support.", Status: http.StatusInternalServerError},
	ErrMessageSendFailed: {Code: ErrMessageSendFailed, Message: "Failed to send message. %s", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
