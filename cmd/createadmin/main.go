// createadmin creates an administrator account, or promotes an existing
// account to administrator and resets its password.
//
//	createadmin --email admin@example.com --password 's3cret-pass'
//
// It reads the same environment as the API server to find the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"inkpress/common"
	"inkpress/database"
	"inkpress/identity"
	"inkpress/models"
	"inkpress/store"
)

type adminInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var in adminInput
	flagSet := pflag.NewFlagSet("createadmin", pflag.ContinueOnError)
	flagSet.StringVar(&in.Email, "email", "", "administrator email (required)")
	flagSet.StringVar(&in.Password, "password", "", "administrator password, at least 8 characters (required)")
	flagSet.StringVar(&in.FirstName, "first-name", "", "first name")
	flagSet.StringVar(&in.LastName, "last-name", "", "last name")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	common.SetupLogger(cfg)

	db, err := common.ConnectDb(cfg)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}

	u, created, err := ensureAdmin(context.Background(), store.New(db), in)
	if err != nil {
		return err
	}
	if created {
		slog.Info("administrator created", "user_id", u.ID, "email", u.Email)
	} else {
		slog.Info("administrator updated", "user_id", u.ID, "email", u.Email)
	}
	return nil
}

// ensureAdmin creates the account or promotes the existing one. Either
// way the account ends up active, staff, admin and holding in.Password.
func ensureAdmin(ctx context.Context, s *store.Store, in adminInput) (*models.User, bool, error) {
	if strings.TrimSpace(in.Email) == "" {
		return nil, false, errors.New("--email is required")
	}
	if len(in.Password) < 8 {
		return nil, false, errors.New("--password must be at least 8 characters")
	}
	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.GetUserByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, common.ErrNotFound):
		u := &models.User{
			Email:        in.Email,
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			Role:         models.RoleAdmin,
			IsActive:     true,
			IsStaff:      true,
			PasswordHash: hash,
		}
		if err := s.CreateUser(ctx, u); err != nil {
			return nil, false, err
		}
		return u, true, nil
	case err != nil:
		return nil, false, err
	}

	if err := s.SetPassword(ctx, existing.ID, hash); err != nil {
		return nil, false, err
	}
	if err := s.SetStaff(ctx, existing.ID, true); err != nil {
		return nil, false, err
	}
	if _, err := s.SetActive(ctx, existing.ID, true); err != nil {
		return nil, false, err
	}
	u, err := s.SetRole(ctx, existing.ID, models.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}
