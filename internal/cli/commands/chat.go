package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/chat"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/export"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/tui"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

var (
	senderOverride string
	sendTimeout    time.Duration
	exportPath     string
)

var chatCmd = &cobra.Command{
	Use:   "chat <chatId>",
	Short: "open an interactive chat",
	Long: `Open a chat in the terminal.

Earlier messages are loaded from the message store, new ones arrive live.
Your messages appear at once and are marked until the hub confirms them.`,
	Example: `  $ mentorchat chat 42

  # Keyboard controls:
  • Enter sends the message
  • ↑↓ / PgUp PgDn scroll
  • Esc quits`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

var sendCmd = &cobra.Command{
	Use:   "send <chatId> <text>",
	Short: "send one message and exit",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var historyCmd = &cobra.Command{
	Use:   "history <chatId>",
	Short: "print the stored messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var exportCmd = &cobra.Command{
	Use:     "export <chatId>",
	Short:   "export a chat transcript to an .xlsx file",
	Example: `  $ mentorchat export 42 -o chat-42.xlsx`,
	Args:    cobra.ExactArgs(1),
	RunE:    runExport,
}

func init() {
	for _, c := range []*cobra.Command{chatCmd, sendCmd, historyCmd, exportCmd} {
		c.SilenceUsage = true
	}
	chatCmd.Flags().StringVar(&senderOverride, "as", "", "send as this user id instead of the saved one")
	sendCmd.Flags().StringVar(&senderOverride, "as", "", "send as this user id instead of the saved one")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "give up after this long")
	historyCmd.Flags().StringVar(&senderOverride, "as", "", "highlight messages of this user id")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output file (default chat-<chatId>.xlsx)")
}

func runChat(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	self, err := c.userID(senderOverride)
	if err != nil {
		return err
	}

	conv, err := c.svc.Open(context.Background(), domain.ChatID(args[0]))
	if err != nil {
		ui.PrintError("failed to open chat: %v", err)
		return fmt.Errorf("open failed")
	}
	defer conv.Close()

	if err := tui.NewChatProgram(conv, self).Run(); err != nil {
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	self, err := c.userID(senderOverride)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	conv, err := c.svc.Open(ctx, domain.ChatID(args[0]))
	if err != nil {
		ui.PrintError("failed to open chat: %v", err)
		return fmt.Errorf("open failed")
	}
	defer conv.Close()

	text := strings.Join(args[1:], " ")
	if _, err := conv.Send(ctx, chat.SendInput{SenderID: self, Content: text}); err != nil {
		if domain.IsPersistenceFailure(err) {
			ui.PrintWarning("delivered, but not saved to history: %v", err)
			return nil
		}
		ui.PrintError("message not delivered: %v", err)
		return fmt.Errorf("send failed")
	}

	if err := persistenceNotice(conv); err != nil {
		ui.PrintWarning("delivered, but not saved to history: %v", err)
		return nil
	}

	ui.PrintSuccess("sent to chat %s", args[0])
	return nil
}

// persistenceNotice drains queued notices and returns the soft persistence
// failure of the last send, if any.
func persistenceNotice(conv *chat.Conversation) error {
	for {
		select {
		case n := <-conv.Notices():
			if n.Kind == chat.NoticePersistenceFailed {
				return n.Err
			}
		default:
			return nil
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	msgs, err := c.svc.History(ctx, domain.ChatID(args[0]))
	if err != nil {
		ui.PrintError("failed to load history: %v", err)
		return fmt.Errorf("history failed")
	}
	if len(msgs) == 0 {
		ui.PrintInfo("no messages in chat %s", args[0])
		return nil
	}

	self := domain.UserID(senderOverride)
	if self == "" {
		self = domain.UserID(c.profile.UserID)
	}
	for _, m := range msgs {
		ui.PrintMessage(m, self)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	chatID := domain.ChatID(args[0])
	msgs, err := c.svc.History(ctx, chatID)
	if err != nil {
		ui.PrintError("failed to load history: %v", err)
		return fmt.Errorf("export failed")
	}

	path := exportPath
	if path == "" {
		path = fmt.Sprintf("chat-%s.xlsx", chatID)
	}
	if err := export.WriteFile(path, chatID, msgs); err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("export failed")
	}

	ui.PrintSuccess("exported %d messages to %s", len(msgs), path)
	return nil
}
