// Package commands implements the resignctl CLI.
package commands

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/resignhq/resign/internal/cli/prompt"
	"github.com/resignhq/resign/internal/client"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	serverAddr   string
	useTLS       bool
	caFile       string
	insecureTLS  bool
	loginAs      string
	loginPasswd  string
	dialTimeout  = 10 * time.Second
	replyTimeout = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "resignctl",
	Short: "Client for the RESIGN directory server",
	Long: `resignctl speaks the RESIGN session protocol to manage the HR user
directory from the command line.

Examples:
  # List users anonymously
  resignctl users list

  # List users as an authenticated account
  resignctl --login default_hr users list

  # Add a user (requires an HR login)
  resignctl --login default_hr user add bob --phone 0791234567 --role StandardUser

  # Change your own phone number
  resignctl --login default_user phone set-own 0795556677

  # Change someone else's phone number (requires an HR login)
  resignctl --login default_hr phone set bob 0795556677`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("resignctl %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "127.0.0.1:4444", "Server address (host:port)")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", false, "Connect over TLS")
	rootCmd.PersistentFlags().StringVar(&caFile, "ca", "", "CA certificate file for TLS verification")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&loginAs, "login", "", "Authenticate as this username before running the command")
	rootCmd.PersistentFlags().StringVar(&loginPasswd, "password", "", "Password for --login (prompted when omitted)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(phoneCmd)
}

// tlsConfig builds the client TLS configuration from the global flags.
func tlsConfig() (*tls.Config, error) {
	if !useTLS {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureTLS,
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// connect dials the server and performs the --login exchange when requested.
// Callers own the returned client and should end it with Exit.
func connect() (*client.Client, error) {
	tlsCfg, err := tlsConfig()
	if err != nil {
		return nil, err
	}

	c, err := client.Dial(client.Options{
		Address:     serverAddr,
		TLS:         tlsCfg,
		DialTimeout: dialTimeout,
		ReadTimeout: replyTimeout,
	})
	if err != nil {
		return nil, err
	}

	if loginAs != "" {
		password := loginPasswd
		if password == "" {
			if password, err = prompt.Password(fmt.Sprintf("Password for %s", loginAs)); err != nil {
				c.Close()
				return nil, err
			}
		}
		if err := c.Login(loginAs, password); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}
