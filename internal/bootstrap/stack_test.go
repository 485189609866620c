package bootstrap

import (
	"context"
	"testing"
	"time"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/providers/kie"
	"genflow/internal/providers/qwen"
)

func memoryConfig() *infra.Config {
	return &infra.Config{
		AppEnv:        "test",
		JWTSecret:     "secret",
		KieBaseURL:    "http://127.0.0.1:1",
		QwenBaseURL:   "http://127.0.0.1:1",
		HeyGenBaseURL: "http://127.0.0.1:1",
		CreditCosts:   infra.CreditCosts{Video: 10, Image: 2, Avatar: 15},
		NotifyWindow:  30 * time.Second,
	}
}

func TestBuildMemoryStack(t *testing.T) {
	stack, err := Build(context.Background(), memoryConfig(), nil, nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	defer stack.Shutdown(context.Background())

	if stack.Pool != nil {
		t.Fatalf("expected no pool for the memory store")
	}
	if err := stack.Ready(context.Background()); err != nil {
		t.Fatalf("Ready returned error: %v", err)
	}
	for _, kind := range domain.Kinds {
		if _, err := stack.Providers.Default(kind); err != nil {
			t.Fatalf("no default provider for %s: %v", kind, err)
		}
	}
	image, err := stack.Providers.Default(domain.KindImage)
	if err != nil {
		t.Fatalf("Default(image): %v", err)
	}
	if image.Name() != qwen.Name {
		t.Fatalf("image default = %q, want %q", image.Name(), qwen.Name)
	}
	if _, err := stack.Providers.Lookup(domain.KindImage, kie.NameGPT4oImage); err != nil {
		t.Fatalf("kie image adapter missing: %v", err)
	}
}

func TestBuildStackRunsJobsInMemory(t *testing.T) {
	stack, err := Build(context.Background(), memoryConfig(), nil, nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	defer stack.Shutdown(context.Background())

	if err := stack.Ledger.Grant(context.Background(), "user-1", 5); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	balance, err := stack.Service.Credits(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Credits: %v", err)
	}
	if balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
	resumed, err := stack.Service.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("resumed = %d, want 0 on an empty store", resumed)
	}
}
