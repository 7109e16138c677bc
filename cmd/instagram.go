package cmd

import (
	"github.com/spf13/cobra"
)

func newInstagramCmd() *cobra.Command {
	var relogin bool
	cmd := &cobra.Command{
		Use:   "instagram HASHTAG",
		Short: "Collect the posts shown for an Instagram hashtag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ig := appInstance.Instagram()
			if relogin {
				ig.ResetSession()
			}
			posts, err := ig.HashtagPosts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), posts)
		},
	}
	cmd.Flags().BoolVar(&relogin, "relogin", false, "ignore the stored session and log in again")
	return cmd
}
