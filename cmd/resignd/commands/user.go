package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resignhq/resign/internal/cli/output"
	"github.com/resignhq/resign/internal/cli/prompt"
	"github.com/resignhq/resign/internal/logger"
	"github.com/resignhq/resign/pkg/config"
	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/identity"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Offline account administration",
	Long: `Manage accounts directly in the configured store.

These commands open the store without going through the session server and
must not run while the server is running against the same badger directory.

Examples:
  # Create an HR account, prompting for the password
  resignd user create --username root_hr --phone 0791234567 --role HR

  # List accounts
  resignd user list`,
}

var (
	createUsername string
	createPassword string
	createPhone    string
	createRole     string
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runUserList,
}

func init() {
	userCreateCmd.Flags().StringVarP(&createUsername, "username", "u", "", "Username (required)")
	userCreateCmd.Flags().StringVarP(&createPassword, "password", "p", "", "Password (prompted when omitted)")
	userCreateCmd.Flags().StringVar(&createPhone, "phone", "", "Phone number (required)")
	userCreateCmd.Flags().StringVar(&createRole, "role", string(identity.RoleStandardUser), "Role: StandardUser or HR")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("phone")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
}

// adminStore opens the configured store with logging kept quiet.
func adminStore() (directory.Store, error) {
	cfg, err := config.Load(resolveConfigFile())
	if err != nil {
		return nil, err
	}
	logger.SetLevel("ERROR")
	return openStore(cfg)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := identity.NormalizeUsername(createUsername)
	if !identity.ValidUsername(username) {
		return fmt.Errorf("invalid username %q", createUsername)
	}
	if !identity.ValidPhone(createPhone) {
		return fmt.Errorf("invalid phone number %q", createPhone)
	}
	role, err := identity.ParseRole(createRole)
	if err != nil {
		return err
	}

	password := createPassword
	if password == "" {
		if password, err = prompt.NewPassword(); err != nil {
			return err
		}
	}
	if !identity.ValidPassword(password) {
		return fmt.Errorf("password does not meet the password policy")
	}

	store, err := adminStore()
	if err != nil {
		return err
	}
	defer store.Close()

	digest, err := identity.BcryptVerifier{}.Hash(password)
	if err != nil {
		return err
	}

	err = store.Create(context.Background(), &identity.Account{
		Username:     username,
		PasswordHash: digest,
		PhoneNumber:  createPhone,
		Role:         role,
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Printf("Account %q created with role %s\n", username, role)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	store, err := adminStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projections, err := store.ListProjections(context.Background())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(projections))
	for _, p := range projections {
		rows = append(rows, []string{p.Username, p.PhoneNumber})
	}
	output.PrintTable(os.Stdout, []string{"USERNAME", "PHONE"}, rows)
	return nil
}
