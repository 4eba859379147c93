package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qjdesk/complaint-desk/internal/config"
	"github.com/qjdesk/complaint-desk/internal/database"
	"github.com/qjdesk/complaint-desk/internal/logging"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/repository"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "provision",
		Short:         "Provision the complaint desk database and staff accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(), newUserCommand())
	return root
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, _ config.Config, db *sql.DB) error {
				if err := database.Migrate(ctx, db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Staff account management",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

type createOpts struct {
	username string
	password string
	role     string
}

func newUserCreateCommand() *cobra.Command {
	var o createOpts
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff user with a bcrypt password hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.password == "" {
				o.password = os.Getenv("PROVISION_PASSWORD")
			}
			role, err := o.validate()
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context, cfg config.Config, db *sql.DB) error {
				id, err := repository.NewUserRepo(db).Create(ctx, o.username, o.password, role, cfg.BcryptCost)
				if errors.Is(err, repository.ErrUsernameExists) {
					return fmt.Errorf("username %q already exists", repository.NormalizeUsername(o.username))
				}
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", id, repository.NormalizeUsername(o.username), role)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&o.username, "username", "u", "", "login name (required)")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "password; defaults to $PROVISION_PASSWORD")
	cmd.Flags().StringVarP(&o.role, "role", "r", string(model.RoleStandard), "admin, supervisor or standard")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (o createOpts) validate() (model.Role, error) {
	if repository.NormalizeUsername(o.username) == "" {
		return "", errors.New("username is required")
	}
	if len(o.password) < 8 {
		return "", errors.New("password must be at least 8 characters long")
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(o.role)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", o.role)
	}
	return role, nil
}

func withDB(parent context.Context, fn func(context.Context, config.Config, *sql.DB) error) error {
	cfg := config.LoadDatabase()
	logging.Setup(cfg.Env, cfg.LogLevel)

	db, err := database.Open(database.OptionsFrom(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	return fn(ctx, cfg, db)
}
