package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

var (
	// Color definitions for terminal output
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	selfColor    = color.New(color.FgCyan, color.Bold)
	peerColor    = color.New(color.FgMagenta, color.Bold)
)

// Styles defines all lipgloss styles used in the CLI
var Styles = struct {
	Bold       lipgloss.Style
	SuccessBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Bold: lipgloss.NewStyle().Bold(true),

	SuccessBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("42")).
		Padding(0, 1).
		Width(60),

	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(0, 1).
		Width(60),
}

func PrintSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	successColor.Printf("✓ %s\n", msg)
}

func PrintError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	errorColor.Printf("✗ %s\n", msg)
}

func PrintWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	warningColor.Printf("⚠ %s\n", msg)
}

func PrintInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	infoColor.Printf("ℹ %s\n", msg)
}

func PrintBold(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	boldColor.Println(msg)
}

// PrintSuccessBox prints a success message in a box
func PrintSuccessBox(title, content string) {
	boxContent := fmt.Sprintf("%s\n\n%s",
		successColor.Sprint(title),
		content,
	)
	fmt.Println(Styles.SuccessBox.Render(boxContent))
}

// PrintErrorBox prints an error message in a box
func PrintErrorBox(title, content string) {
	boxContent := fmt.Sprintf("%s\n\n%s",
		errorColor.Sprint(title),
		content,
	)
	fmt.Println(Styles.ErrorBox.Render(boxContent))
}

// PrintMessage prints one stored message as "15:04 sender: text".
func PrintMessage(evt domain.InboundEvent, self domain.UserID) {
	who := peerColor.Sprint(string(evt.SenderID))
	if evt.SenderID == self {
		who = selfColor.Sprint("you")
	}
	fmt.Printf("%s %s: %s\n",
		dimColor.Sprint(evt.CreatedDate.Local().Format("2006-01-02 15:04")),
		who,
		MessageBody(evt.MessageType, evt.Content, evt.MediaURL),
	)
}

// MessageBody renders the text of a message, or a placeholder for media.
func MessageBody(t domain.MessageType, content string, mediaURL *string) string {
	if t == domain.MessageText || mediaURL == nil {
		return content
	}
	label := fmt.Sprintf("[%s] %s", t, *mediaURL)
	if strings.TrimSpace(content) != "" {
		label += " " + content
	}
	return label
}
