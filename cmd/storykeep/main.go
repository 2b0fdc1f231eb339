package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/storykeep/internal/config"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath   string
	dbPath       string
	forceOffline bool
	configOutput string
)

var rootCmd = &cobra.Command{
	Use:           "storykeep",
	Short:         "Offline-first story client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("storykeep %s\n", Version)
		fmt.Println("Offline-first story client")
		fmt.Println("github.com/pders01/storykeep")
	},
}

var configGenCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Write the default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		path := configOutput
		if path == "" {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, ".config", "storykeep", "config.toml")
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			return
		}
		fmt.Printf("Generated default configuration at: %s\n", path)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "Do not contact the story service")

	configGenCmd.Flags().StringVarP(&configOutput, "output", "o", "", "Where to write the file")

	rootCmd.AddCommand(versionCmd, configGenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

var (
	accent     = lipgloss.Color("#4ECDC4")
	muted      = lipgloss.Color("#95E1D3")
	warn       = lipgloss.Color("#FFA86B")
	alert      = lipgloss.Color("#FF6B6B")
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(12)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(alert)
	warnStyle  = lipgloss.NewStyle().Foreground(warn)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func showBanner() {
	lines := []string{
		"┌─┐┌┬┐┌─┐┬─┐┬ ┬┬┌─┌─┐┌─┐┌─┐",
		"└─┐ │ │ │├┬┘└┬┘├┴┐├┤ ├┤ ├─┘",
		"└─┘ ┴ └─┘┴└─ ┴ ┴ ┴└─┘└─┘┴  ",
		"",
		"offline-first stories " + Version,
	}

	colors := []lipgloss.Color{alert, warn, accent}
	var rendered []string
	for i, line := range lines {
		style := lipgloss.NewStyle().Foreground(colors[i%len(colors)]).Bold(i < 3)
		if line == "" {
			rendered = append(rendered, line)
			continue
		}
		rendered = append(rendered, style.Render(line))
	}

	banner := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(1, 3).
		Render(lipgloss.JoinVertical(lipgloss.Center, rendered...))
	fmt.Println(banner)
}
