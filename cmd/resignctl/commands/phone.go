package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var phoneCmd = &cobra.Command{
	Use:   "phone",
	Short: "Phone number management",
}

var phoneSetOwnCmd = &cobra.Command{
	Use:   "set-own <phone>",
	Short: "Change your own phone number",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhoneSetOwn,
}

var phoneSetCmd = &cobra.Command{
	Use:   "set <username> <phone>",
	Short: "Change another user's phone number (requires an HR login)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPhoneSet,
}

func init() {
	phoneCmd.AddCommand(phoneSetOwnCmd)
	phoneCmd.AddCommand(phoneSetCmd)
}

func runPhoneSetOwn(cmd *cobra.Command, args []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Exit()

	if err := c.ChangeOwnPhone(args[0]); err != nil {
		return err
	}
	fmt.Println("Phone number updated")
	return nil
}

func runPhoneSet(cmd *cobra.Command, args []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Exit()

	if err := c.ChangePhone(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Phone number for %q updated\n", args[0])
	return nil
}
