package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/resignhq/resign/internal/cli/output"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Directory listings",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users and their phone numbers",
	RunE:  runUsersList,
}

func init() {
	usersCmd.AddCommand(usersListCmd)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Exit()

	users, err := c.ShowUsers()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Username, u.PhoneNumber})
	}
	output.PrintTable(os.Stdout, []string{"USERNAME", "PHONE"}, rows)
	return nil
}
