package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/commands"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/cli/ui"
)

func main() {
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "unknown command") {
			ui.PrintError("%s", errMsg)
			fmt.Println("\nRun 'mentorchat --help' for usage.")
		}
		os.Exit(1)
	}
}
