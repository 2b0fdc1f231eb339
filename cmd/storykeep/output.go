package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/storykeep/internal/storage"
)

func printInfo(msg string) {
	fmt.Println(titleStyle.Render(msg))
}

func printWarn(msg string) {
	fmt.Println(warnStyle.Render(msg))
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderStory(s *storage.Story) string {
	head := titleStyle.Render(s.ID)
	if s.IsOffline {
		tag := "pending upload"
		if s.FailedUpload {
			tag = "upload failed, pending retry"
		}
		head += " " + warnStyle.Render("["+tag+"]")
	}

	lines := []string{head}
	if s.Name != "" {
		lines = append(lines, field("author", s.Name))
	}
	lines = append(lines, field("story", truncateLine(s.Description, 72)))
	if !s.CreatedAt.IsZero() {
		lines = append(lines, field("created", s.CreatedAt.Local().Format(time.RFC822)))
	}
	if s.Location != nil {
		lines = append(lines, field("location", fmt.Sprintf("%.5f, %.5f", s.Location.Lat, s.Location.Lon)))
	}
	return strings.Join(lines, "\n")
}

func printStories(list []*storage.Story) {
	if len(list) == 0 {
		fmt.Println(dimStyle.Render("No stories."))
		return
	}
	for i, s := range list {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(renderStory(s))
	}
}

func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
