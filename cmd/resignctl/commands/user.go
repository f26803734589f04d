package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resignhq/resign/internal/cli/prompt"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Account management",
}

var (
	addPassword string
	addPhone    string
	addRole     string
)

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account (requires an HR login)",
	Long: `Create an account in the directory.

The password is prompted with confirmation unless given via --user-password.

Examples:
  resignctl --login default_hr user add bob --phone 0791234567
  resignctl --login default_hr user add carol --phone 0799876543 --role HR`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

func init() {
	userAddCmd.Flags().StringVar(&addPassword, "user-password", "", "Password for the new account (prompted when omitted)")
	userAddCmd.Flags().StringVar(&addPhone, "phone", "", "Phone number (required)")
	userAddCmd.Flags().StringVar(&addRole, "role", "StandardUser", "Role: StandardUser or HR")
	_ = userAddCmd.MarkFlagRequired("phone")

	userCmd.AddCommand(userAddCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	password := addPassword
	if password == "" {
		var err error
		if password, err = prompt.NewPassword(); err != nil {
			return err
		}
	}

	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Exit()

	if err := c.AddUser(username, password, addPhone, addRole); err != nil {
		return err
	}

	fmt.Printf("Account %q created\n", username)
	return nil
}
