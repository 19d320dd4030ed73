package commands

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
)

var (
	loginUser  string
	loginToken string
	loginHub   string
	loginAPI   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "save your access token and user id",
	Long: `Save the access token and user id used for every chat command.

The profile is stored in ~/.mentorchat/profile.json (or $MENTORCHAT_HOME).
A new login is picked up by the next reconnect of a running chat.`,
	Example: `  # Prompt for everything
  $ mentorchat login

  # Non-interactive
  $ mentorchat login --user u1 --token eyJ... --hub https://chat.example.com/chathub`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "your user id")
	loginCmd.Flags().StringVarP(&loginToken, "token", "t", "", "access token")
	loginCmd.Flags().StringVar(&loginHub, "hub", "", "hub URL, e.g. http://localhost:8080/chathub")
	loginCmd.Flags().StringVar(&loginAPI, "api", "", "REST API base URL")

	loginCmd.SilenceUsage = true
}

func runLogin(cmd *cobra.Command, args []string) error {
	profile, err := config.LoadProfile()
	if err != nil {
		ui.PrintError("failed to load profile: %v", err)
		return fmt.Errorf("profile load failed")
	}

	if loginUser == "" {
		prompt := &survey.Input{Message: "User ID:", Default: profile.UserID}
		if err := survey.AskOne(prompt, &loginUser, survey.WithValidator(survey.Required)); err != nil {
			ui.PrintError("failed to read user id: %v", err)
			return fmt.Errorf("input failed")
		}
	}

	if loginToken == "" {
		prompt := &survey.Password{Message: "Access token:"}
		if err := survey.AskOne(prompt, &loginToken, survey.WithValidator(survey.Required)); err != nil {
			ui.PrintError("failed to read token: %v", err)
			return fmt.Errorf("input failed")
		}
	}

	profile.UserID = strings.TrimSpace(loginUser)
	profile.AccessToken = strings.TrimSpace(loginToken)
	if loginHub != "" {
		profile.HubURL = strings.TrimRight(loginHub, "/")
	}
	if loginAPI != "" {
		profile.APIURL = strings.TrimRight(loginAPI, "/")
	}

	if err := profile.Save(); err != nil {
		ui.PrintError("failed to save profile: %v", err)
		return fmt.Errorf("profile save failed")
	}

	cfg := config.Load()
	profile.Apply(cfg)
	path, _ := config.ProfilePath()

	ui.PrintSuccessBox("✓ Login Saved", fmt.Sprintf(`User ID:   %s
Hub:       %s
API:       %s
Profile:   %s`, profile.UserID, cfg.HubURL, cfg.APIURL, path))

	fmt.Println()
	ui.PrintInfo("You can now use the following commands:")
	ui.PrintBold("  mentorchat chat <chatId>          # Open a chat")
	ui.PrintBold("  mentorchat history <chatId>       # Print stored messages")
	return nil
}
