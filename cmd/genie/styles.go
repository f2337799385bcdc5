package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/genie/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	modelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

func roleLabel(r types.Role) string {
	switch r {
	case types.RoleUser:
		return userStyle.Render("you")
	case types.RoleModel:
		return modelStyle.Render("genie")
	case types.RoleError:
		return errorStyle.Render("error")
	default:
		return systemStyle.Render("system")
	}
}

func renderMessage(m types.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", roleLabel(m.Role), dimStyle.Render(m.Timestamp.Format("15:04")))
	if m.Image != nil {
		name := m.Image.FileName
		if name == "" {
			name = m.Image.MimeType
		}
		fmt.Fprintf(&b, "%s\n", systemStyle.Render("[image: "+name+"]"))
	}
	switch m.Role {
	case types.RoleError:
		b.WriteString(errorStyle.Render(m.Content))
	case types.RoleSystem:
		b.WriteString(systemStyle.Render(m.Content))
	default:
		b.WriteString(m.Content)
	}
	return b.String()
}

// renderSessionLine formats one row of a session listing.
func renderSessionLine(i int, s types.ChatSession, active bool) string {
	marker := " "
	if active {
		marker = modelStyle.Render("▶")
	}
	pin := ""
	if s.IsPinned {
		pin = " " + pinStyle.Render("[pinned]")
	}
	return fmt.Sprintf("%s %2d. %s%s %s %s", marker, i+1, titleStyle.Render(s.Title), pin,
		dimStyle.Render(s.ModelID), dimStyle.Render(s.CreatedAt.Format("2006-01-02 15:04")))
}

// sessionLister is the read side of the controller the CLI resolves
// session references against.
type sessionLister interface {
	Sessions() []types.ChatSession
}

// resolveSession accepts a 1-based position in display order, a full
// session id or a unique id prefix.
func resolveSession(ctl sessionLister, ref string) (types.ChatSession, error) {
	sessions := ctl.Sessions()
	if ref == "" {
		return types.ChatSession{}, fmt.Errorf("session reference is required")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return types.ChatSession{}, fmt.Errorf("no session number %d (have %d)", n, len(sessions))
		}
		return sessions[n-1], nil
	}

	var match []types.ChatSession
	for _, s := range sessions {
		if string(s.ID) == ref {
			return s, nil
		}
		if strings.HasPrefix(string(s.ID), ref) {
			match = append(match, s)
		}
	}
	switch len(match) {
	case 0:
		return types.ChatSession{}, fmt.Errorf("session not found: %s", ref)
	case 1:
		return match[0], nil
	default:
		return types.ChatSession{}, fmt.Errorf("ambiguous session prefix %q matches %d sessions", ref, len(match))
	}
}
