package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/chatlog"
	"github.com/MikeSquared-Agency/chathub/internal/client"
	"github.com/MikeSquared-Agency/chathub/internal/config"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

var (
	chatServer       string
	chatAPI          string
	chatConversation string
	chatUser         string
	chatAutoPublish  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a conversation from the terminal",
	Long: `Join a conversation and chat from the terminal.

Plain lines are sent to everyone in the conversation. Commands:
  /register <provider> <apiKey> [model] [endpoint]   register your model
  /ask <prompt>                                      ask your model (private draft)
  /show                                              publish the latest draft
  /quit                                              leave

Examples:
  chathub chat -c standup -u alice
  chathub chat -s https://chat.example.com -c standup -u bob --auto-publish`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatServer, "server", "s", "http://localhost:3000", "hub base URL")
	chatCmd.Flags().StringVar(&chatAPI, "api", "", "BYOM base URL (default <server>/api)")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "conversation id")
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "your user id")
	chatCmd.Flags().BoolVar(&chatAutoPublish, "auto-publish", false, "share model replies immediately")
	chatCmd.MarkFlagRequired("conversation")
	chatCmd.MarkFlagRequired("user")
}

func runChat(cmd *cobra.Command, _ []string) error {
	// Logs go to stderr so they do not interleave with the transcript.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(os.Getenv("LOG_LEVEL")),
	}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sock, err := client.Dial(ctx, chatServer)
	if err != nil {
		return err
	}
	defer sock.Close()

	apiBase := chatAPI
	if apiBase == "" {
		apiBase = strings.TrimRight(chatServer, "/") + "/api"
	}
	byomClient := client.NewBYOM(apiBase, nil)

	store := chatlog.New(0)
	sess := client.NewSession(store, sock, byomClient, chatConversation, chatUser, logger)
	sess.AutoPublish = chatAutoPublish

	out := cmd.OutOrStdout()
	p := newPrinter(out, chatUser)
	unsubscribe := store.Subscribe(func(convID string) { p.print(store.Messages(convID)) })
	defer unsubscribe()

	listenErr := make(chan error, 1)
	go func() { listenErr <- sock.Listen(ctx, sess.HandleFrame) }()

	if err := sess.Join(); err != nil {
		return err
	}
	fmt.Fprintf(out, "joined %s as %s\n", chatConversation, chatUser)

	inputDone := make(chan error, 1)
	go func() { inputDone <- repl(ctx, cmd.InOrStdin(), out, chatUser, sess, byomClient) }()

	select {
	case err := <-inputDone:
		return err
	case err := <-listenErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("connection lost: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// registrar is the part of the BYOM client the REPL needs.
type registrar interface {
	RegisterProvider(ctx context.Context, userID string, kind provider.Kind, cfg provider.Config) error
}

type chatSession interface {
	Send(text string) (chat.Message, error)
	Ask(ctx context.Context, prompt string) chat.Message
	RevealLatest() (chat.Message, error)
}

// repl reads lines from in until EOF or /quit.
func repl(ctx context.Context, in io.Reader, out io.Writer, userID string, sess chatSession, reg registrar) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch {
		case !strings.HasPrefix(line, "/"):
			if _, err := sess.Send(line); err != nil {
				fmt.Fprintf(out, "! send failed: %v\n", err)
			}
		case cmd == "/quit" || cmd == "/exit":
			return nil
		case cmd == "/ask":
			if rest == "" {
				fmt.Fprintln(out, "! usage: /ask <prompt>")
				continue
			}
			sess.Ask(ctx, rest)
		case cmd == "/show":
			if _, err := sess.RevealLatest(); err != nil {
				if errors.Is(err, chatlog.ErrNotFound) {
					fmt.Fprintln(out, "! no draft to publish")
				} else {
					fmt.Fprintf(out, "! publish failed: %v\n", err)
				}
				continue
			}
			fmt.Fprintln(out, "* draft published")
		case cmd == "/register":
			if err := register(ctx, reg, userID, rest); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			fmt.Fprintln(out, "* provider registered")
		default:
			fmt.Fprintf(out, "! unknown command %s\n", cmd)
		}
	}
	return scanner.Err()
}

func register(ctx context.Context, reg registrar, userID, args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return errors.New("usage: /register <provider> <apiKey> [model] [endpoint]")
	}
	cfg := provider.Config{APIKey: fields[1]}
	if len(fields) > 2 {
		cfg.Model = fields[2]
	}
	if len(fields) > 3 {
		cfg.Endpoint = fields[3]
	}
	return reg.RegisterProvider(ctx, userID, provider.Kind(fields[0]), cfg)
}

var (
	authorColor    = color.New(color.FgCyan)
	assistantColor = color.New(color.FgGreen)
	draftColor     = color.New(color.FgYellow)
)

// printer writes each message once, the first time it shows up in the store.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	self string
	seen map[chat.Key]bool
}

func newPrinter(out io.Writer, self string) *printer {
	return &printer{out: out, self: self, seen: make(map[chat.Key]bool)}
}

func (p *printer) print(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		k := m.Key()
		if p.seen[k] {
			continue
		}
		p.seen[k] = true
		switch {
		case m.Ephemeral:
			draftColor.Fprintf(p.out, "[draft] %s: %s  (/show to share)\n", m.Author, m.Text)
		case m.Author == p.self:
			// already on screen as typed
		case m.ModelID() != "":
			assistantColor.Fprintf(p.out, "%s (%s): ", m.Author, m.ModelID())
			fmt.Fprintln(p.out, m.Text)
		case m.Role == chat.RoleAssistant:
			assistantColor.Fprintf(p.out, "%s: ", m.Author)
			fmt.Fprintln(p.out, m.Text)
		default:
			authorColor.Fprintf(p.out, "%s: ", m.Author)
			fmt.Fprintln(p.out, m.Text)
		}
	}
}
