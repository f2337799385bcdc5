package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/export"
	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/types"
)

var (
	chatSession string
	chatModel   string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().StringVar(&chatSession, "session", "", "resume the session with this number or id")
		c.Flags().StringVar(&chatModel, "model", "", "model for the current chat")
	}
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat (default command)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := applyChatFlags(ctx, a.ctl); err != nil {
		return err
	}

	r := &repl{ctl: a.ctl, models: a.registry, out: os.Stdout}
	unwatch := a.ctl.Watch(r.onChange)
	defer unwatch()

	// Ctrl-C stops a running response; at the prompt it exits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if a.ctl.IsLoading() {
				a.ctl.StopGenerating()
				continue
			}
			fmt.Fprintln(r.out)
			a.Close()
			os.Exit(0)
		}
	}()

	return r.run(ctx, os.Stdin)
}

// applyChatFlags selects the --session and switches the current chat to
// --model, starting a chat when there is none.
func applyChatFlags(ctx context.Context, ctl *chat.Controller) error {
	if chatSession != "" {
		s, err := resolveSession(ctl, chatSession)
		if err != nil {
			return err
		}
		if err := ctl.SelectSession(s.ID); err != nil {
			return err
		}
	}
	if chatModel == "" {
		return nil
	}
	s, ok := ctl.ActiveSession()
	if !ok {
		s = ctl.StartNewChat(ctx)
	}
	return ctl.ChangeSessionModel(ctx, s.ID, chatModel)
}

// repl is the terminal frontend. Streaming output is driven by controller
// change notifications; commands are slash-prefixed lines.
type repl struct {
	ctl    *chat.Controller
	models *models.Registry
	out    io.Writer

	in *bufio.Scanner

	mu        sync.Mutex
	streaming types.MessageID
	printed   int
}

func (r *repl) onChange(ch chat.Change) {
	if ch.Kind != chat.ChangeMessageUpdated {
		return
	}
	sess, ok := r.ctl.Session(ch.SessionID)
	if !ok {
		return
	}
	msg, ok := sess.Message(ch.MessageID)
	if !ok || msg.Role != types.RoleModel {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streaming != msg.ID {
		r.streaming = msg.ID
		r.printed = 0
		fmt.Fprintf(r.out, "%s\n", roleLabel(types.RoleModel))
	}
	if len(msg.Content) > r.printed {
		io.WriteString(r.out, msg.Content[r.printed:])
		r.printed = len(msg.Content)
	}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.printHeader()
	r.in = bufio.NewScanner(in)
	r.in.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, userStyle.Render("> "))
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}
		r.send(ctx, line, nil)
	}
}

// confirm asks a yes/no question on the input stream. Anything but y/yes is no.
func (r *repl) confirm(question string) bool {
	return confirm(r.in, r.out, question)
}

// confirm asks a y/N question; anything but y or yes, including EOF, is no.
func confirm(in *bufio.Scanner, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	if !in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(in.Text()))
	return answer == "y" || answer == "yes"
}

func (r *repl) printHeader() {
	if s, ok := r.ctl.ActiveSession(); ok {
		fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render(s.Title), dimStyle.Render("("+s.ModelID+")"))
		for _, m := range s.Messages {
			fmt.Fprintln(r.out, renderMessage(m))
		}
	} else {
		fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render("Genie"), dimStyle.Render("("+r.ctl.DefaultModel()+")"))
	}
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands. Ctrl-C stops a response."))
}

func (r *repl) send(ctx context.Context, text string, image *types.ImageAttachment) {
	id, err := r.ctl.SendMessage(ctx, r.ctl.ActiveID(), text, image)

	r.mu.Lock()
	streamed := r.streaming != ""
	r.streaming = ""
	r.printed = 0
	r.mu.Unlock()
	if streamed {
		fmt.Fprintln(r.out)
	}

	if err != nil && !errors.Is(err, chat.ErrSessionNotFound) {
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		return
	}
	sess, ok := r.ctl.Session(id)
	if !ok || len(sess.Messages) == 0 {
		return
	}
	if last := sess.Messages[len(sess.Messages)-1]; last.Role == types.RoleError {
		fmt.Fprintln(r.out, renderMessage(last))
	}
}

const replHelp = `/new                  start a new chat
/list                 list chats
/select <n|id>        switch chat
/rename <title>       rename the current chat
/delete [n|id]        delete a chat (default: current)
/pin [n|id]           toggle pin
/model [id]           show or change the current chat's model
/models               list models
/default <id>         change the default model for new chats
/image <path> [text]  send an image with optional text
/export <fmt> [file]  export the current chat (json, yaml, md)
/sidebar              toggle the chat list
/history              reprint the current chat
/quit                 exit`

func (r *repl) command(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "new":
		s := r.ctl.StartNewChat(ctx)
		fmt.Fprintf(r.out, "%s %s\n", titleStyle.Render(s.Title), dimStyle.Render("("+s.ModelID+")"))
	case "list":
		r.printSessions()
	case "select":
		s, err := resolveSession(r.ctl, arg)
		if err != nil {
			return false, err
		}
		if err := r.ctl.SelectSession(s.ID); err != nil {
			return false, err
		}
		r.printHeader()
	case "history":
		r.printHeader()
	case "rename":
		s, ok := r.ctl.ActiveSession()
		if !ok {
			return false, fmt.Errorf("no active chat")
		}
		if err := r.ctl.RenameSession(ctx, s.ID, arg); err != nil {
			return false, err
		}
	case "delete":
		s, err := r.targetSession(arg)
		if err != nil {
			return false, err
		}
		if !r.confirm(fmt.Sprintf("Delete %q?", s.Title)) {
			return false, nil
		}
		if err := r.ctl.DeleteSession(ctx, s.ID); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted %s\n", titleStyle.Render(s.Title))
	case "pin":
		s, err := r.targetSession(arg)
		if err != nil {
			return false, err
		}
		return false, r.ctl.TogglePin(ctx, s.ID)
	case "model":
		s, ok := r.ctl.ActiveSession()
		if !ok {
			return false, fmt.Errorf("no active chat")
		}
		if arg == "" {
			fmt.Fprintln(r.out, s.ModelID)
			return false, nil
		}
		return false, r.ctl.ChangeSessionModel(ctx, s.ID, arg)
	case "models":
		printModels(r.out, r.models.List(), r.ctl.DefaultModel())
	case "default":
		ok, err := r.ctl.ChangeDefaultModel(ctx, arg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("unknown model %q", arg)
		}
	case "image":
		path, text, _ := strings.Cut(arg, " ")
		img, err := loadImage(path)
		if err != nil {
			return false, err
		}
		r.send(ctx, strings.TrimSpace(text), img)
	case "sidebar":
		r.ctl.ToggleSidebar()
		if r.ctl.SidebarOpen() {
			r.printSessions()
		}
	case "export":
		format, path, _ := strings.Cut(arg, " ")
		s, ok := r.ctl.ActiveSession()
		if !ok {
			return false, fmt.Errorf("no active chat")
		}
		return false, exportSession(s, format, strings.TrimSpace(path), r.out)
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}

func (r *repl) printSessions() {
	active := r.ctl.ActiveID()
	sessions := r.ctl.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("No chats yet."))
	}
	for i, s := range sessions {
		fmt.Fprintln(r.out, renderSessionLine(i, s, s.ID == active))
	}
}

func (r *repl) targetSession(arg string) (types.ChatSession, error) {
	if arg == "" {
		s, ok := r.ctl.ActiveSession()
		if !ok {
			return types.ChatSession{}, fmt.Errorf("no active chat")
		}
		return s, nil
	}
	return resolveSession(r.ctl, arg)
}

// loadImage reads an image file for attachment.
func loadImage(path string) (*types.ImageAttachment, error) {
	if path == "" {
		return nil, fmt.Errorf("usage: /image <path> [text]")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return types.NewImageAttachment(data, mime, filepath.Base(path)), nil
}

// exportSession writes s in format to path, or to w when path is empty.
func exportSession(s types.ChatSession, format, path string, w io.Writer) error {
	if format == "" {
		format = "md"
	}
	exp, err := export.NewExporter(format)
	if err != nil {
		return err
	}
	if path == "" {
		return exp.Export(s, w)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := exp.Export(s, f); err != nil {
		f.Close()
		return fmt.Errorf("export session: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Exported %q to %s\n", s.Title, path)
	return nil
}
