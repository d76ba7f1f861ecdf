package core

import "fmt"

// Inbound is one normalized chat event. Tags may co-occur (text + document).
type Inbound struct {
	ChatID    int64
	MessageID int
	Text      string
	Document  *DocumentRef
	Photo     *PhotoRef
}

// DocumentRef identifies a file attachment hosted by the platform.
type DocumentRef struct {
	FileID   string
	FileName string
}

// PhotoRef identifies a photo hosted by the platform, with its caption.
type PhotoRef struct {
	FileID  string
	Caption string
}

// Part is one element of the multimodal request sent to the agent.
type Part interface{ part() }

// TextPart carries plain text.
type TextPart struct {
	Text string
}

// ImagePart carries a base64-encoded image.
type ImagePart struct {
	MimeType string
	Data     string // base64
}

func (TextPart) part()  {}
func (ImagePart) part() {}

// ImageRef is one markdown image reference extracted from an agent reply.
type ImageRef struct {
	Alt  string
	Path string
}

// MediaItem is one resolved image ready for grouped delivery.
type MediaItem struct {
	FileName string
	Data     []byte
	Caption  string
}

// SessionStatus is a snapshot of one chat's session for /status.
type SessionStatus struct {
	Alias       string
	Initialized bool
	History     int
	Tokens      int
}

// TurnErrorKind classifies a failed turn.
type TurnErrorKind int

const (
	KindEmptyInput TurnErrorKind = iota
	KindInput
	KindInvalidModel
	KindAgentFailure
)

// TurnError is the tagged failure result of one turn. It renders to the text
// shown in place of the progress placeholder.
type TurnError struct {
	Kind  TurnErrorKind
	Alias string
	Err   error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMessage()
}

func (e *TurnError) Unwrap() error { return e.Err }

// UserMessage is the inline text delivered for this failure.
func (e *TurnError) UserMessage() string {
	switch e.Kind {
	case KindEmptyInput:
		return "No content to process."
	case KindInput:
		return fmt.Sprintf("Sorry, I could not read your attachment: %v", e.Err)
	case KindInvalidModel:
		return "Invalid agent selected. Please use /start to select an agent."
	default:
		return fmt.Sprintf("Sorry, I encountered an error with the %s agent: %v", e.Alias, e.Err)
	}
}
