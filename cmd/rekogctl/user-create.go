package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/objectrekognition/rekognition-server/pkg/authn"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
	gormstore "github.com/objectrekognition/rekognition-server/pkg/server/store/gorm"
)

// userCreateCmd represents the user create command
var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user account",
	Long: `Create a user account.

The password is taken from --password or, when omitted, read from the first
line of STDIN.

Example:
  rekogctl user create alice --password s3cret
  echo s3cret | rekogctl user create alice`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			password, err = readPassword(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
				os.Exit(1)
			}
		}

		id, err := createUser(args[0], password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created user '%s' (id %d)\n", args[0], id)
	},
}

func init() {
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().String("password", "", "Password for the new user (default: read from STDIN)")
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func createUser(username, password string) (int64, error) {
	cfg, err := loadConfig()
	if err != nil {
		return 0, err
	}

	database, err := connectDB(cfg)
	if err != nil {
		return 0, err
	}

	directory := authn.NewDirectory(gormstore.NewUsersStore(database), nil,
		authn.WithBcryptCost(cfg.BcryptCost),
		authn.WithLogger(newLogger(cfg.LogLevel)),
	)
	user, err := directory.Register(context.Background(), username, password)
	if errors.Is(err, store.ErrUsernameTaken) {
		return 0, fmt.Errorf("user '%s' already exists", username)
	}
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
