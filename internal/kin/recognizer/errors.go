package recognizer

import "fmt"

// ErrorCode is a recognizer error code. The well-known values follow the
// numbering used by the Android SpeechRecognizer, which most on-device
// recognizers mirror.
type ErrorCode int

const (
	ErrorNetworkTimeout ErrorCode = iota + 1
	ErrorNetwork
	ErrorAudio
	ErrorServer
	ErrorClient
	ErrorSpeechTimeout
	ErrorNoMatch
	ErrorRecognizerBusy
	ErrorInsufficientPermissions
)

var errorNames = map[ErrorCode]string{
	ErrorNetworkTimeout:          "network timeout",
	ErrorNetwork:                 "network",
	ErrorAudio:                   "audio",
	ErrorServer:                  "server",
	ErrorClient:                  "client",
	ErrorSpeechTimeout:           "speech timeout",
	ErrorNoMatch:                 "no match",
	ErrorRecognizerBusy:          "recognizer busy",
	ErrorInsufficientPermissions: "insufficient permissions",
}

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// Transient reports whether the error usually clears on its own, so a
// restart is likely to succeed.
func (c ErrorCode) Transient() bool {
	switch c {
	case ErrorAudio, ErrorInsufficientPermissions:
		return false
	default:
		return true
	}
}
