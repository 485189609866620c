package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"genflow/internal/adapter/repo"
	"genflow/internal/infra"
	"genflow/internal/middleware"
)

func main() {
	var (
		userFlag  string
		grantFlag int
		tokenTTL  time.Duration
	)

	flag.StringVar(&userFlag, "user", "", "user ID (the bearer token subject)")
	flag.IntVar(&grantFlag, "grant", 0, "credits to add to the balance (0 only prints it)")
	flag.DurationVar(&tokenTTL, "token-ttl", 0, "also print a bearer token for the user valid this long (needs JWT_SECRET)")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if grantFlag < 0 {
		exitWithError(errors.New("-grant must not be negative"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.EnsureSchema(ctx, runner); err != nil {
		exitWithError(err)
	}
	ledger := repo.NewCreditLedger(runner)

	if grantFlag > 0 {
		if err := ledger.Grant(ctx, userID, grantFlag); err != nil {
			exitWithError(err)
		}
		fmt.Printf("granted %d credits to %s\n", grantFlag, userID)
	}

	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("balance=%d\n", balance)

	if tokenTTL > 0 {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret == "" {
			exitWithError(errors.New("JWT_SECRET is required for -token-ttl"))
		}
		token, err := middleware.SignJWT(secret, userID, tokenTTL)
		if err != nil {
			exitWithError(fmt.Errorf("failed to sign token: %w", err))
		}
		fmt.Printf("token=%s\n", token)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
