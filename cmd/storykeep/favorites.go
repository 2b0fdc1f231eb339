package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/storykeep/internal/storage"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage favorite stories",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			favs, err := a.manager.Favorites()
			if err != nil {
				return err
			}
			list := make([]*storage.Story, 0, len(favs))
			for _, f := range favs {
				list = append(list, &f.Story)
			}
			printStories(list)
			return nil
		})
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <story-id>",
	Short: "Favorite a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			a.probe(ctx)
			fav, err := a.manager.AddFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			printInfo(fmt.Sprintf("Added %s to favorites.", fav.StoryID))
			return nil
		})
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <story-id>",
	Short: "Remove a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			ok, err := a.manager.IsFavorite(args[0])
			if err != nil {
				return err
			}
			if !ok {
				printWarn(args[0] + " is not a favorite.")
				return nil
			}
			if err := a.manager.RemoveFavorite(args[0]); err != nil {
				return err
			}
			printInfo("Removed.")
			return nil
		})
	},
}

var favoritesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every favorite",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.manager.ClearFavorites(); err != nil {
				return err
			}
			printInfo("Favorites cleared.")
			return nil
		})
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesListCmd, favoritesAddCmd, favoritesRemoveCmd, favoritesClearCmd)
	rootCmd.AddCommand(favoritesCmd)
}
