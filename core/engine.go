package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"
)

// Engine drives one full turn: assemble input, ensure the chat's agent,
// invoke it, parse the reply for embedded directives, and deliver text,
// images and attachments back through the transport.
type Engine struct {
	transport Transport
	sessions  *SessionStore
	assembler *Assembler
	resolver  *Resolver
}

func NewEngine(t Transport, s *SessionStore, a *Assembler, r *Resolver) *Engine {
	return &Engine{transport: t, sessions: s, assembler: a, resolver: r}
}

// deliveryPlan is the successful result of a turn, ready for delivery.
type deliveryPlan struct {
	display     string
	media       []MediaItem
	attachments []string
}

// HandleTurn processes one inbound event end to end. The progress placeholder
// is edited in place at each stage so the user sees liveness during slow
// steps; a failed turn replaces it with the failure text and leaves the
// session untouched.
func (e *Engine) HandleTurn(ctx context.Context, ev Inbound) {
	statusID, err := e.transport.SendStatus(ctx, ev.ChatID, ev.MessageID, "Initializing...")
	if err != nil {
		slog.Error("send status placeholder failed", "chat", ev.ChatID, "error", err)
		return
	}

	progress := func(text string) {
		if err := e.transport.EditStatus(ctx, ev.ChatID, statusID, text); err != nil {
			slog.Warn("edit status failed", "chat", ev.ChatID, "error", err)
		}
	}

	plan, terr := e.runTurn(ctx, ev, progress)
	if terr != nil {
		slog.Error("turn failed", "chat", ev.ChatID, "kind", terr.Kind, "error", terr.Err)
		progress(terr.UserMessage())
		return
	}

	e.deliver(ctx, ev.ChatID, statusID, plan)
}

func (e *Engine) runTurn(ctx context.Context, ev Inbound, progress func(string)) (*deliveryPlan, *TurnError) {
	parts, err := e.assembler.Assemble(ctx, ev, progress)
	if err != nil {
		if errors.Is(err, ErrEmptyInput) {
			return nil, &TurnError{Kind: KindEmptyInput, Err: err}
		}
		return nil, &TurnError{Kind: KindInput, Err: err}
	}

	agent, err := e.sessions.GetOrCreate(ctx, ev.ChatID, func(alias string) {
		progress(fmt.Sprintf("Loading %s agent...", Capitalize(alias)))
	})
	if err != nil {
		if errors.Is(err, ErrUnknownModel) {
			return nil, &TurnError{Kind: KindInvalidModel, Err: err}
		}
		return nil, &TurnError{Kind: KindAgentFailure, Alias: e.sessions.Alias(ev.ChatID), Err: err}
	}

	progress("Thinking...")
	raw, err := agent.Generate(ctx, parts)
	if err != nil {
		return nil, &TurnError{Kind: KindAgentFailure, Alias: e.sessions.Alias(ev.ChatID), Err: err}
	}

	return e.buildPlan(raw), nil
}

// buildPlan derives the deliverables from the raw reply. Parse or resolution
// problems degrade to fewer deliverables; they never fail the turn.
func (e *Engine) buildPlan(raw string) *deliveryPlan {
	// Both strips operate on the raw reply: images go out as media and
	// attachments as documents, so neither belongs in the displayed text.
	plan := &deliveryPlan{
		display:     StripDirectives(StripImageRefs(raw)),
		attachments: AttachmentPaths(raw),
	}

	refs := ExtractImageRefs(raw)
	for _, ref := range refs {
		path, ok := e.resolver.Resolve(ref.Path)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read resolved image", "path", path, "error", err)
			continue
		}
		plan.media = append(plan.media, MediaItem{
			FileName: filepath.Base(path),
			Data:     data,
			Caption:  ref.Alt,
		})
	}
	slog.Debug("reply parsed", "images", len(refs), "resolved", len(plan.media), "attachments", len(plan.attachments))
	return plan
}

func (e *Engine) deliver(ctx context.Context, chatID int64, statusID int, plan *deliveryPlan) {
	display := plan.display
	if display == "" {
		display = "Done."
	}
	if err := e.transport.EditFinal(ctx, chatID, statusID, display); err != nil {
		slog.Error("deliver final text failed", "chat", chatID, "error", err)
	}

	if len(plan.media) > 0 {
		if err := e.transport.SendMediaGroup(ctx, chatID, plan.media); err != nil {
			slog.Error("deliver media group failed", "chat", chatID, "error", err)
		}
	}

	for _, path := range plan.attachments {
		name := filepath.Base(path)
		if fileExists(path) {
			if err := e.transport.SendDocument(ctx, chatID, path, "📄 "+name); err != nil {
				slog.Error("deliver document failed", "chat", chatID, "path", path, "error", err)
			}
			continue
		}
		slog.Warn("attachment not found", "path", path)
		if err := e.transport.SendText(ctx, chatID, "❌ File not found: "+name); err != nil {
			slog.Error("deliver not-found notice failed", "chat", chatID, "error", err)
		}
	}
}

// Router implementation, the platform layer's view of the engine.

func (e *Engine) Status(chatID int64) SessionStatus { return e.sessions.Status(chatID) }

func (e *Engine) TrimContext(chatID int64, keep int) (int, int, error) {
	return e.sessions.TrimHistory(chatID, keep)
}

func (e *Engine) SwitchModel(chatID int64, alias string) (string, error) {
	return e.sessions.SwitchModel(chatID, alias)
}

func (e *Engine) Reset(chatID int64) bool { return e.sessions.Reset(chatID) }

func (e *Engine) ModelAliases() []string { return e.sessions.Aliases() }

// Capitalize upper-cases the first rune, matching how model aliases are shown
// to the user.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
