package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sheetdash/internal/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:         "hash-password [password]",
	Short:       "Print a bcrypt hash for auth.users[].password_hash",
	Long:        "Hashes the password argument, or the first line of stdin when no argument is given.",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{noConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("password required as argument or on stdin")
			}
			password = strings.TrimRight(line, "\r\n")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
