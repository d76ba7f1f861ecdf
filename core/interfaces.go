package core

import "context"

// Transport abstracts the chat platform's delivery surface. The engine only
// edits its own status message, sends text, and pushes media/documents; update
// routing and command handling live in the platform package.
type Transport interface {
	Name() string
	// SendStatus posts the progress placeholder as a reply to the inbound
	// message and returns its message ID for later edits.
	SendStatus(ctx context.Context, chatID int64, replyTo int, text string) (int, error)
	// EditStatus replaces the placeholder text (plain, no markup).
	EditStatus(ctx context.Context, chatID int64, messageID int, text string) error
	// EditFinal replaces the placeholder with the rendered response,
	// falling back to plain text if the markup does not parse.
	EditFinal(ctx context.Context, chatID int64, messageID int, markdown string) error
	SendText(ctx context.Context, chatID int64, text string) error
	SendMediaGroup(ctx context.Context, chatID int64, items []MediaItem) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error

	FileFetcher
}

// FileFetcher downloads a platform-hosted file by its opaque ID. The second
// return value is the platform-side path, used only for its file extension.
type FileFetcher interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

// Agent abstracts one conversational LLM runtime instance. The agent owns the
// conversation history; the engine builds each turn's request from scratch.
type Agent interface {
	// Generate runs one turn and returns the final assistant text.
	Generate(ctx context.Context, parts []Part) (string, error)
	HistoryLength() int
	EstimateTokens() int
	// TrimHistory keeps the last n history entries and returns the new length.
	TrimHistory(keep int) int
	Close() error
}

// Router is the engine surface the platform layer drives: one method per
// user-visible operation.
type Router interface {
	HandleTurn(ctx context.Context, ev Inbound)
	Status(chatID int64) SessionStatus
	TrimContext(chatID int64, keep int) (before, after int, err error)
	SwitchModel(chatID int64, alias string) (modelID string, err error)
	Reset(chatID int64) bool
	ModelAliases() []string
}
