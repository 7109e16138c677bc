package cmd

import (
	"github.com/spf13/cobra"
)

func newRedditCmd() *cobra.Command {
	var members bool
	cmd := &cobra.Command{
		Use:   "reddit KEYWORD",
		Short: "Search Reddit and print the posts found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			r := appInstance.Reddit()
			if members {
				posts, err := r.PostsWithMembers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), posts)
			}
			posts, err := r.SearchPosts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), posts)
		},
	}
	cmd.Flags().BoolVar(&members, "members", false, "also read each subreddit's member count")
	return cmd
}
