package voice

import "github.com/neuralos/neuralos/pkg/speech"

// ErrorClass categorizes a failed capture for user-facing handling.
type ErrorClass string

const (
	// ClassPermissionDenied means microphone or recognition permission is
	// missing. The UI should offer the keyboard instead.
	ClassPermissionDenied ErrorClass = "permission_denied"

	// ClassNoSpeech means the recognizer heard nothing usable. Benign; the
	// session returns to idle without alarming the user.
	ClassNoSpeech ErrorClass = "no_speech"

	// ClassNetwork covers connectivity failures to the recognition service.
	ClassNetwork ErrorClass = "network"

	// ClassAudio covers microphone and audio pipeline failures.
	ClassAudio ErrorClass = "audio"

	// ClassBusy means the recognizer is already serving another client.
	ClassBusy ErrorClass = "busy"

	// ClassServer covers recognition service errors.
	ClassServer ErrorClass = "server"

	// ClassLanguageUnsupported means the configured locale has no recognition
	// support.
	ClassLanguageUnsupported ErrorClass = "language_unsupported"

	// ClassUnavailable means the recognition service is not usable on this
	// device at all, e.g. not installed or failing its availability check.
	ClassUnavailable ErrorClass = "unavailable"

	// ClassUnknown is the fallback for unmapped codes.
	ClassUnknown ErrorClass = "unknown"
)

// CaptureError is a capture failure mapped into the user-facing taxonomy.
type CaptureError struct {
	// Class is the failure category.
	Class ErrorClass

	// Message is the pre-approved user-facing description.
	Message string

	// SuggestTyping indicates the UI should offer keyboard input as the
	// recovery path.
	SuggestTyping bool

	// Code is the raw platform code, for logs.
	Code int
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return "voice: " + string(e.Class) + ": " + e.Message
}

// captureErrors maps each class to its presentation.
var captureErrors = map[ErrorClass]CaptureError{
	ClassPermissionDenied: {
		Class:         ClassPermissionDenied,
		Message:       "Microphone access is off. You can type instead.",
		SuggestTyping: true,
	},
	ClassNoSpeech: {
		Class:   ClassNoSpeech,
		Message: "I didn't catch that. Try again?",
	},
	ClassNetwork: {
		Class:   ClassNetwork,
		Message: "Speech recognition needs a network connection.",
	},
	ClassAudio: {
		Class:   ClassAudio,
		Message: "There's a problem with the microphone.",
	},
	ClassBusy: {
		Class:   ClassBusy,
		Message: "Speech recognition is busy. Try again in a moment.",
	},
	ClassServer: {
		Class:   ClassServer,
		Message: "The speech service is having trouble right now.",
	},
	ClassLanguageUnsupported: {
		Class:         ClassLanguageUnsupported,
		Message:       "Speech recognition isn't available for this language.",
		SuggestTyping: true,
	},
	ClassUnavailable: {
		Class:         ClassUnavailable,
		Message:       "Speech recognition isn't available right now. You can type instead.",
		SuggestTyping: true,
	},
	ClassUnknown: {
		Class:   ClassUnknown,
		Message: "Speech recognition failed. Try again?",
	},
}

// classifyCode maps a raw platform error code into the taxonomy.
func classifyCode(code int) ErrorClass {
	switch code {
	case speech.CodePermissionDenied:
		return ClassPermissionDenied
	case speech.CodeSpeechTimeout, speech.CodeNoMatch:
		return ClassNoSpeech
	case speech.CodeNetworkTimeout, speech.CodeNetwork:
		return ClassNetwork
	case speech.CodeAudio:
		return ClassAudio
	case speech.CodeBusy:
		return ClassBusy
	case speech.CodeServer:
		return ClassServer
	case speech.CodeLanguageUnsupported:
		return ClassLanguageUnsupported
	case speech.CodeClient:
		return ClassUnavailable
	}
	return ClassUnknown
}

// newCaptureError builds the CaptureError for a raw platform code.
func newCaptureError(code int) *CaptureError {
	e := captureErrors[classifyCode(code)]
	e.Code = code
	return &e
}

// permissionError is the capture error raised before the platform is even
// started, when the permission gate fails.
func permissionError() *CaptureError {
	e := captureErrors[ClassPermissionDenied]
	return &e
}
