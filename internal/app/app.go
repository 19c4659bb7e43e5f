package app

import (
	"context"
	"log/slog"
	"time"

	"userservice/internal/app/httpapp"
	"userservice/internal/config"
	authhttp "userservice/internal/http/auth"
	"userservice/internal/mailer"
	"userservice/internal/services/auth"
	"userservice/internal/storage/mongodb"
	"userservice/internal/storage/sqlite"
)

type App struct {
	HTTPSrv *httpapp.App
}

func New(logger *slog.Logger, cfg *config.Config) *App {
	var (
		users  auth.UserStore
		tokens auth.TokenStore
	)

	switch cfg.Storage.Type {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			panic(err)
		}
		users, tokens = st, st
	case "sqlite":
		st, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			panic(err)
		}
		users, tokens = st, st
	default:
		panic("unknown storage type: " + cfg.Storage.Type)
	}

	notifier, err := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		panic(err)
	}

	authService := auth.New(logger, users, tokens, notifier, auth.Config{
		AccessSecret:        cfg.Tokens.AccessSecret,
		AccessTokenTTL:      cfg.Tokens.AccessTTL,
		RefreshTokenTTL:     cfg.Tokens.RefreshTTL,
		VerificationCodeTTL: cfg.Tokens.VerificationCodeTTL,
		ResetTokenTTL:       cfg.Tokens.ResetTokenTTL,
		TokenPepper:         cfg.Tokens.Pepper,
	})

	httpApp := httpapp.New(logger, authService, authhttp.Options{
		RefreshTokenTTL: cfg.Tokens.RefreshTTL,
		SecureCookies:   cfg.HTTP.SecureCookies,
	}, cfg.HTTP.Port, cfg.HTTP.Timeout)

	return &App{
		HTTPSrv: httpApp,
	}
}
