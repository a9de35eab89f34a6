package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg, nil)
			if err != nil {
				return err
			}
			e, err := st.FindByUID(uid)
			if err != nil {
				return err
			}

			// Confirmation prompt
			if !force {
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprintf(cmd.ErrOrStderr(), "Delete '%s' (%s)? (y/N) ", e.Subject, uid)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				answer = strings.TrimSpace(strings.ToLower(answer))
				if answer != "y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
			}

			if err := st.Delete(uid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted '%s'\n", uid)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	return cmd
}
