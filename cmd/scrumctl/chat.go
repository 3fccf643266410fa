package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/ashureev/scrum-ai/internal/conversation"
	"github.com/ashureev/scrum-ai/internal/domain"
	"github.com/ashureev/scrum-ai/internal/store"
	"github.com/spf13/cobra"
)

var (
	chatUser    string
	chatProduct string
)

const chatHelp = `Commands:
  /menu N              click section menu option N
  /action N            click action option N (0-based)
  /set FIELD VALUE     set a text or single-select field
  /toggle FIELD OPT    toggle a multi-select option
  /submit              send the form
  /product ID [NAME]   select a product ("/product -" clears it)
  /sprint ID           select a sprint
  /canvas TYPE         load side-panel data (products, backlog, sprints, tasks, team, architecture)
  /new                 start a new conversation
  /load SESSION        load a stored conversation
  /state               print the session state
  /quit                exit
Anything else is sent as a message.`

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Runs an interactive session against the configured backend using the
same session manager as the gateway. State is stored in DB_PATH under the
given user, so a session can be resumed later.

` + chatHelp,
		RunE: runChat,
	}
	cmd.Flags().StringVarP(&chatUser, "user", "u", "cli", "Local identity that owns the session state")
	cmd.Flags().StringVarP(&chatProduct, "product", "p", "", "Select this product id before the first message")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := conversation.NewManager(ctx, chatUser, conversation.Dependencies{
		Backend:     newBackendClient(cfg),
		Store:       repo,
		TypingDelay: 0,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	if chatProduct != "" {
		if err := m.SelectProduct(ctx, &domain.Product{ID: chatProduct}); err != nil {
			fmt.Fprintln(out, "!", err)
		}
	}

	s := &chatSession{m: m, out: out}
	s.printNew()
	fmt.Fprintln(out, "Type /help for commands.")
	return s.loop(ctx, cmd.InOrStdin())
}

type chatSession struct {
	m     *conversation.Manager
	out   io.Writer
	shown int
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		c := parseCommand(scanner.Text())
		if c.name == "quit" {
			return nil
		}
		if err := s.run(ctx, c); err != nil {
			fmt.Fprintln(s.out, "!", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		s.printNew()
	}
}

// command is one parsed REPL line. name is empty for a plain message.
type command struct {
	name string
	args []string
	text string
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{text: line}
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{text: line}
	}
	c := command{name: strings.ToLower(fields[0]), args: fields[1:]}
	// Values may contain spaces: everything after the field id is the value.
	if c.name == "set" || c.name == "toggle" {
		if len(c.args) > 1 {
			c.args = []string{c.args[0], strings.Join(c.args[1:], " ")}
		}
	}
	return c
}

var errUsage = errors.New("wrong arguments, see /help")

func (s *chatSession) run(ctx context.Context, c command) error {
	switch c.name {
	case "":
		if c.text == "" {
			return nil
		}
		return s.m.Send(ctx, c.text)
	case "help":
		fmt.Fprintln(s.out, chatHelp)
		return nil
	case "menu", "action":
		if len(c.args) != 1 {
			return errUsage
		}
		n, err := strconv.Atoi(c.args[0])
		if err != nil {
			return errUsage
		}
		if c.name == "menu" {
			return s.m.ChooseMenuOption(ctx, n)
		}
		return s.m.ChooseAction(ctx, n)
	case "set", "toggle":
		if len(c.args) != 2 {
			return errUsage
		}
		var fv *conversation.FormView
		var err error
		if c.name == "set" {
			fv, err = s.m.SetFormValue(c.args[0], c.args[1])
		} else {
			fv, err = s.m.ToggleFormValue(c.args[0], c.args[1])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "  %s = %q (%.0f%%)\n", c.args[0], fv.Values[c.args[0]], fv.Progress*100)
		return nil
	case "submit":
		return s.m.SubmitForm(ctx)
	case "product":
		if len(c.args) == 0 {
			return errUsage
		}
		if c.args[0] == "-" {
			return s.m.SelectProduct(ctx, nil)
		}
		p := &domain.Product{ID: c.args[0], Name: strings.Join(c.args[1:], " ")}
		if err := s.m.SelectProduct(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "  architecture: %s\n", s.m.Snapshot().Presence[p.ID])
		return nil
	case "sprint":
		if len(c.args) != 1 {
			return errUsage
		}
		s.m.SelectSprint(c.args[0])
		return nil
	case "canvas":
		if len(c.args) != 1 {
			return errUsage
		}
		canvas, err := s.m.FetchCanvas(ctx, domain.ParseCanvasKind(c.args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "  %s: %s (%d items)\n", canvas.Kind, canvas.Title, len(canvas.Data))
		return nil
	case "new":
		if err := s.m.NewConversation(); err != nil {
			return err
		}
		s.shown = 0
		return nil
	case "load":
		if len(c.args) != 1 {
			return errUsage
		}
		if err := s.m.LoadConversation(ctx, c.args[0]); err != nil {
			return err
		}
		s.shown = 0
		return nil
	case "state":
		st := s.m.Snapshot()
		product := "-"
		if st.SelectedProduct != nil {
			product = st.SelectedProduct.ID
		}
		fmt.Fprintf(s.out, "  session=%s product=%s sprint=%s section=%s messages=%d\n",
			orDash(st.SessionID), product, orDash(st.SelectedSprintID), orDash(string(st.ActiveEditSection)), len(st.Messages))
		return nil
	default:
		return fmt.Errorf("unknown command /%s", c.name)
	}
}

// printNew prints the messages appended since the last call.
func (s *chatSession) printNew() {
	view := s.m.View()
	if s.shown > len(view.Messages) {
		s.shown = 0
	}
	for _, msg := range view.Messages[s.shown:] {
		writeMessage(s.out, msg)
	}
	s.shown = len(view.Messages)
}

func writeMessage(w io.Writer, msg conversation.RenderedMessage) {
	prefix := "tú"
	if msg.IsAssistant() {
		prefix = "asistente"
	}
	if msg.Status == domain.StatusError {
		prefix += " (error)"
	}
	fmt.Fprintf(w, "%s: %s\n", prefix, msg.DisplayText)
	if msg.Directive != nil {
		writeWidgets(w, *msg.Directive)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
