package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"genflow/internal/adapter/repo"
	"genflow/internal/infra"
	"genflow/internal/infra/credentials"
)

// envKeys names the variable each provider key falls back to.
var envKeys = map[string]string{
	credentials.ProviderKie:    "KIE_API_KEY",
	credentials.ProviderQwen:   "QWEN_API_KEY",
	credentials.ProviderHeyGen: "HEYGEN_API_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
		deleteFlag   bool
		listFlag     bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (fallbacks to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderKie, "provider to configure ("+strings.Join(credentials.Providers, ", ")+")")
	flag.BoolVar(&deleteFlag, "delete", false, "remove the stored key instead of setting it")
	flag.BoolVar(&listFlag, "list", false, "list providers with a stored key")
	flag.Parse()

	_ = godotenv.Load()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if !listFlag && !credentials.IsKnown(provider) {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Str("provider", provider).Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.EnsureSchema(ctx, runner); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	switch {
	case listFlag:
		entries, err := store.List(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s\tupdated %s\n", e.Provider, e.UpdatedAt.UTC().Format(time.RFC3339))
		}
	case deleteFlag:
		removed, err := store.DeleteToken(ctx, provider)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if !removed {
			fmt.Printf("no %s API key stored\n", strings.ToUpper(provider))
			return
		}
		fmt.Printf("%s API key removed\n", strings.ToUpper(provider))
	default:
		key := strings.TrimSpace(keyFlag)
		if key == "" {
			key = strings.TrimSpace(os.Getenv(envKeys[provider]))
		}
		if key == "" {
			fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", strings.ToUpper(provider), envKeys[provider])
			os.Exit(1)
		}
		props := map[string]any{"set_by": "providerkey", "set_at": time.Now().UTC().Format(time.RFC3339)}
		if err := store.SetToken(ctx, provider, key, props); err != nil {
			fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
			os.Exit(1)
		}
		fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
	}
}
