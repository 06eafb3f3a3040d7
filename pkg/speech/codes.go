package speech

// Platform-numeric error codes carried by KindError events. The numbering
// follows the common mobile recognizer convention so that codes emitted by an
// OS bridge map one-to-one; Go-native platforms in this repository emit the
// same values. Codes outside this set are legal and classify as unknown.
const (
	CodeNetworkTimeout      = 1
	CodeNetwork             = 2
	CodeAudio               = 3
	CodeServer              = 4
	CodeClient              = 5
	CodeSpeechTimeout       = 6
	CodeNoMatch             = 7
	CodeBusy                = 8
	CodePermissionDenied    = 9
	CodeLanguageUnsupported = 12
)
