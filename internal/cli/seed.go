package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/config"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/utils"
)

type seedOptions struct {
	Name     string
	Email    string
	Password string
}

// NewSeedCommand creates the seed command, which provisions the first
// administrator. There is no public sign-up.
func NewSeedCommand(_ *RootOptions) *cobra.Command {
	so := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an ADMIN user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			return withDB(func(db *sql.DB) error {
				return seedAdmin(cmd.Context(), repository.NewUserRepo(db), so, cfg.BcryptCost, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&so.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&so.Email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&so.Password, "password", "", "initial password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

type adminCreator interface {
	Create(ctx context.Context, u *model.User, password string, cost int) error
}

func seedAdmin(ctx context.Context, users adminCreator, so *seedOptions, cost int, out io.Writer) error {
	email := strings.ToLower(strings.TrimSpace(so.Email))
	if !utils.ValidEmail(email) {
		return fmt.Errorf("invalid email %q", so.Email)
	}
	if err := utils.CheckPassword(so.Password); err != nil {
		return err
	}
	u := &model.User{
		Name:   strings.TrimSpace(so.Name),
		Email:  email,
		RoleID: model.RoleAdmin,
		Active: true,
	}
	if err := users.Create(ctx, u, so.Password, cost); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("user %s already exists", email)
		}
		return err
	}
	fmt.Fprintf(out, "created admin %s (id %d)\n", u.Email, u.ID)
	return nil
}
