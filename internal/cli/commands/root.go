package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mentorchat",
	Short:   "Mentor chat client",
	Version: version,
	Long: `A terminal client for mentor/mentee chats. Messages show up immediately,
are relayed over the live hub and written to the message store; the
connection recovers on its own when the network drops.`,
	Example: `  # Save your token and user id
  $ mentorchat login --user u1

  # Open a chat
  $ mentorchat chat 42

  # Send one message and exit
  $ mentorchat send 42 "see you at 5"

  # Export a transcript
  $ mentorchat export 42 -o chat-42.xlsx`,
}

// Execute executes the root command
func Execute() error {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mentorchat version %s\n", version))
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)

	rootCmd.SetUsageTemplate(usageTemplate())
	rootCmd.SetHelpTemplate(usageTemplate())
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + ui.Styles.Bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + ui.Styles.Bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + ui.Styles.Bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + ui.Styles.Bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}
