package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/storykeep/internal/offline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, session and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			st, err := a.manager.Status()
			if err != nil {
				return err
			}
			offlineStories, err := a.manager.OfflineStories()
			if err != nil {
				return err
			}
			static, dynamic := a.layer.Names()
			fmt.Println(renderStatus(st, len(offlineStories), static+", "+dynamic))
			return nil
		})
	},
}

func renderStatus(st offline.Status, offlineStories int, caches string) string {
	conn := lipgloss.NewStyle().Foreground(accent).Render("online")
	if !st.Online {
		conn = warnStyle.Render("offline")
	}
	session := dimStyle.Render("not logged in")
	if st.LoggedIn {
		session = "logged in"
		if st.User != "" {
			session += " as " + st.User
		}
	}
	pending := strconv.Itoa(st.Pending)
	if st.Pending > 0 {
		pending = warnStyle.Render(pending)
	}

	rows := []string{
		titleStyle.Render("storykeep " + Version),
		field("network", conn),
		field("session", session),
		field("pending", pending),
		field("unsynced", strconv.Itoa(offlineStories)),
		field("caches", caches),
	}
	if st.Syncing {
		rows = append(rows, field("sync", "in progress"))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(strings.Join(rows, "\n"))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
