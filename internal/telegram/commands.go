package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/types"
)

const helpText = `Commands:
/new - start a new chat
/list - list chats
/select <n> - switch to chat n
/rename <title> - rename the current chat
/delete <n> - delete chat n (confirm with /delete <n> yes)
/pin <n> - pin or unpin chat n
/model <id> - change the current chat's model
/models - list models
/stop - stop the current response`

// handleCommand executes a bot command and returns the reply text.
func (a *Adapter) handleCommand(ctx context.Context, name, args string) string {
	args = strings.TrimSpace(args)

	switch name {
	case "start", "help":
		return "Hello! Send me a message or a photo to chat.\n\n" + helpText

	case "new":
		s := a.ctl.StartNewChat(ctx)
		return fmt.Sprintf("Started a new chat (%s).", s.ModelID)

	case "list":
		return a.listSessions()

	case "select":
		s, err := a.sessionByArg(args)
		if err != nil {
			return err.Error()
		}
		if err := a.ctl.SelectSession(s.ID); err != nil {
			return err.Error()
		}
		return "Switched to: " + s.Title

	case "rename":
		active, ok := a.ctl.ActiveSession()
		if !ok {
			return "No active chat."
		}
		if args == "" {
			return "Usage: /rename <title>"
		}
		if err := a.ctl.RenameSession(ctx, active.ID, args); err != nil {
			return "Rename failed: " + err.Error()
		}
		return "Renamed to: " + args

	case "delete":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return "Usage: /delete <n>"
		}
		s, err := a.sessionByArg(fields[0])
		if err != nil {
			return err.Error()
		}
		if len(fields) < 2 || fields[1] != "yes" {
			return fmt.Sprintf("Delete %q? Send /delete %s yes to confirm.", s.Title, fields[0])
		}
		if err := a.ctl.DeleteSession(ctx, s.ID); err != nil {
			return "Delete failed: " + err.Error()
		}
		return "Deleted: " + s.Title

	case "pin":
		s, err := a.sessionByArg(args)
		if err != nil {
			return err.Error()
		}
		if err := a.ctl.TogglePin(ctx, s.ID); err != nil {
			return "Pin failed: " + err.Error()
		}
		if s.IsPinned {
			return "Unpinned: " + s.Title
		}
		return "Pinned: " + s.Title

	case "model":
		active, ok := a.ctl.ActiveSession()
		if !ok {
			return "No active chat."
		}
		if args == "" {
			return "Current model: " + active.ModelID
		}
		if err := a.ctl.ChangeSessionModel(ctx, active.ID, args); err != nil {
			if errors.Is(err, chat.ErrUnknownModel) {
				return "Unknown model. Use /models to list them."
			}
			return "Model change failed: " + err.Error()
		}
		return "Model set to " + args

	case "models":
		var b strings.Builder
		for _, d := range a.models.List() {
			fmt.Fprintf(&b, "%s - %s", d.ID, d.Name)
			if d.SupportsImage {
				b.WriteString(" (images)")
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")

	case "stop":
		a.ctl.StopGenerating()
		return "Stopping."

	default:
		return "Unknown command.\n\n" + helpText
	}
}

func (a *Adapter) listSessions() string {
	sessions := a.ctl.Sessions()
	if len(sessions) == 0 {
		return "No chats yet. Send a message to start one."
	}
	active, _ := a.ctl.ActiveSession()

	var b strings.Builder
	for i, s := range sessions {
		marker := " "
		if s.ID == active.ID {
			marker = "▶"
		}
		pin := ""
		if s.IsPinned {
			pin = " 📌"
		}
		fmt.Fprintf(&b, "%s %d. %s%s [%s]\n", marker, i+1, s.Title, pin, s.ModelID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sessionByArg resolves a 1-based position in display order or a session id.
func (a *Adapter) sessionByArg(arg string) (types.ChatSession, error) {
	sessions := a.ctl.Sessions()
	if arg == "" {
		return types.ChatSession{}, fmt.Errorf("Which chat? Use /list to see numbers.")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return types.ChatSession{}, fmt.Errorf("No chat number %d.", n)
		}
		return sessions[n-1], nil
	}
	for _, s := range sessions {
		if string(s.ID) == arg {
			return s, nil
		}
	}
	return types.ChatSession{}, fmt.Errorf("No chat %q.", arg)
}
