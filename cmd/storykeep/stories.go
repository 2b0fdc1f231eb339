package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pders01/storykeep/internal/offline"
	"github.com/pders01/storykeep/internal/remote"
)

var (
	listPage     int
	listSize     int
	listLocation bool

	addDescription string
	addPhoto       string
	addLat         string
	addLon         string
	addGuest       bool

	searchLimit int
)

var storiesCmd = &cobra.Command{
	Use:     "stories",
	Aliases: []string{"s"},
	Short:   "List, add, delete and search stories",
}

var storiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stories, from the service when reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			res, err := a.manager.ListStories(ctx, remote.ListOptions{
				Page:     listPage,
				Size:     listSize,
				Location: listLocation,
			})
			if err != nil {
				return err
			}
			if res.Local {
				printWarn("Offline: showing stories saved on this device.")
			}
			printStories(res.Stories)
			return nil
		})
	},
}

var storiesOfflineCmd = &cobra.Command{
	Use:   "offline",
	Short: "List stories waiting to be uploaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			list, err := a.manager.OfflineStories()
			if err != nil {
				return err
			}
			printStories(list)
			return nil
		})
	},
}

var storiesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			story, err := a.manager.GetStory(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(renderStory(story))
			return nil
		})
	},
}

var storiesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a story; it is queued when the service is unreachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		photo, err := os.ReadFile(addPhoto)
		if err != nil {
			return fmt.Errorf("reading photo: %w", err)
		}
		lat, err := parseCoord(addLat)
		if err != nil {
			return fmt.Errorf("--lat: %w", err)
		}
		lon, err := parseCoord(addLon)
		if err != nil {
			return fmt.Errorf("--lon: %w", err)
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			res, err := a.manager.AddStory(ctx, offline.StoryInput{
				Description: addDescription,
				Photo:       photo,
				Lat:         lat,
				Lon:         lon,
				Guest:       addGuest,
			})
			if err != nil {
				return err
			}
			if res.Queued {
				printWarn("Saved offline as " + res.Story.ID + "; it will upload on the next sync.")
				return nil
			}
			printInfo("Story uploaded.")
			return nil
		})
	},
}

var storiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			res, err := a.manager.DeleteStory(ctx, args[0])
			if err != nil {
				return err
			}
			switch {
			case res.Queued:
				printWarn("Deleted locally; the remote delete will run on the next sync.")
			case res.Discarded > 0:
				printInfo("Deleted local story and dropped its pending upload.")
			default:
				printInfo("Deleted.")
			}
			return nil
		})
	},
}

var storiesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stories saved on this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			results, err := a.manager.Search(args[0], searchLimit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println(dimStyle.Render("No matches."))
				return nil
			}
			for i, r := range results {
				if i > 0 {
					fmt.Println()
				}
				fmt.Println(renderStory(r.Story))
				fmt.Println(dimStyle.Render(fmt.Sprintf("score %.2f", r.Score)))
			}
			return nil
		})
	},
}

func parseCoord(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func init() {
	storiesListCmd.Flags().IntVar(&listPage, "page", 1, "Page to fetch")
	storiesListCmd.Flags().IntVar(&listSize, "size", 20, "Stories per page")
	storiesListCmd.Flags().BoolVar(&listLocation, "location", false, "Only stories with a location")

	storiesAddCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Story text")
	storiesAddCmd.Flags().StringVarP(&addPhoto, "photo", "p", "", "Path to the photo (max 1 MB)")
	storiesAddCmd.Flags().StringVar(&addLat, "lat", "", "Latitude")
	storiesAddCmd.Flags().StringVar(&addLon, "lon", "", "Longitude")
	storiesAddCmd.Flags().BoolVar(&addGuest, "guest", false, "Upload without logging in")
	_ = storiesAddCmd.MarkFlagRequired("description")
	_ = storiesAddCmd.MarkFlagRequired("photo")

	storiesSearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum results")

	storiesCmd.AddCommand(storiesListCmd, storiesOfflineCmd, storiesShowCmd, storiesAddCmd, storiesDeleteCmd, storiesSearchCmd)
	rootCmd.AddCommand(storiesCmd)
}
