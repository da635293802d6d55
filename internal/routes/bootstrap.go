package routes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/digibank/digibank/internal/account"
	"github.com/digibank/digibank/internal/config"
	"github.com/digibank/digibank/internal/user"
)

// bootstrapAdmin creates the default administrator user and its banking
// account when ADMIN_EMAIL and ADMIN_PASSWORD are set. Existing records are
// left alone.
func bootstrapAdmin(ctx context.Context, cfg config.Config, users *user.Service, accounts *account.Service, logger *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	created, err := users.Bootstrap(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		logger.Info("default administrator created", slog.String("email", cfg.AdminEmail))
	}

	_, err = accounts.Register(ctx, account.RegisterInput{
		Name:            cfg.AdminName,
		Email:           cfg.AdminEmail,
		Password:        cfg.AdminPassword,
		PasswordConfirm: cfg.AdminPassword,
		OpeningBalance:  cfg.MinimumOpeningBalance,
	})
	switch {
	case errors.Is(err, account.ErrEmailTaken):
		return nil
	case err != nil:
		return err
	}
	logger.Info("default administrator account opened", slog.String("email", cfg.AdminEmail))
	return nil
}
