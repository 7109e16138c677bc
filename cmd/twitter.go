package cmd

import (
	"github.com/spf13/cobra"
)

func newTwitterCmd() *cobra.Command {
	var relogin bool
	cmd := &cobra.Command{
		Use:     "twitter HASHTAG",
		Aliases: []string{"x"},
		Short:   "Collect the posts an X hashtag search shows",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := appInstance.Twitter()
			if relogin {
				tw.ResetSession()
			}
			tweets, err := tw.HashtagPosts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tweets)
		},
	}
	cmd.Flags().BoolVar(&relogin, "relogin", false, "ignore the stored session and log in again")
	return cmd
}
