package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"asset-lending-api/internal/auth"
	"asset-lending-api/internal/database"
	"asset-lending-api/internal/logger"
	"asset-lending-api/internal/models"
	"asset-lending-api/internal/store/postgres"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func migrateCmd(direction database.Direction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(direction),
		Short: fmt.Sprintf("Apply %s migrations", direction),
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if err := database.Migrate(os.Getenv("DB_DSN"), dir, direction, logger.MustNew(os.Getenv("ENVIRONMENT"))); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "db/migrations", "Directory containing the migration files")
	return cmd
}

var userCmd = &cobra.Command{
	Use:   "user <username> <role>",
	Short: "Create a user with a bcrypt password",
	Long:  `Creates a STUDENT, LECTURER or STAFF account. The password is read from --password.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := models.ParseRole(args[1])
		if !ok {
			return fmt.Errorf("unknown role %q", args[1])
		}
		password, _ := cmd.Flags().GetString("password")
		fullName, _ := cmd.Flags().GetString("full-name")
		driver, _ := cmd.Flags().GetString("driver")

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		db, err := database.Open(ctx, driver, os.Getenv("DB_DSN"))
		if err != nil {
			return err
		}
		defer db.Close()

		u := models.User{Username: args[0], PasswordHash: hash, Role: role}
		if fullName != "" {
			u.FullName = &fullName
		}
		if err := postgres.New(db).CreateUser(ctx, &u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %s (id=%d, role=%s)\n", u.Username, u.ID, u.Role)
		return nil
	},
}

func main() {
	// Load .env file, but don't overwrite system environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, falling back to system environment variables.")
	}

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Asset lending database management",
		Long:  `Runs schema migrations and creates accounts. Reads DB_DSN from the environment.`,
	}
	userCmd.Flags().String("password", "", "Account password")
	userCmd.Flags().String("full-name", "", "Display name")
	userCmd.Flags().String("driver", database.DriverPgx, "database/sql driver (pgx or postgres)")
	_ = userCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(migrateCmd(database.Up), migrateCmd(database.Down), userCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
