package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/khchop/kickscore/internal/domain"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog_Valid(t *testing.T) {
	path := writeCatalog(t, `
models:
  - name: alpha
    backend: openai
    upstream_model: gpt-4o
  - name: beta
    backend: deepseek
    upstream_model: deepseek-chat
    timeout_class: reasoning
    prompt_variant: language_enforce
    response_handler: strip_thinking
    fallback: alpha
budgets:
  openai: 100
`)
	cat, graph, err := LoadCatalog(path, 1)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(cat.Models))
	}
	if cat.Budgets["openai"] != 100 {
		t.Fatalf("expected budget 100, got %d", cat.Budgets["openai"])
	}
	if target, ok := graph.TargetFor("beta"); !ok || target != "alpha" {
		t.Fatalf("expected beta -> alpha, got %q ok=%v", target, ok)
	}

	// Defaults applied to the sparse entry.
	alpha := cat.Models[0]
	if alpha.TimeoutClass != domain.TimeoutClassStandard ||
		alpha.PromptVariant != domain.PromptVariantPlain ||
		alpha.ResponseHandler != domain.ResponseHandlerPassthrough {
		t.Fatalf("defaults not applied: %+v", alpha)
	}
}

func TestLoadCatalog_RejectsDanglingFallback(t *testing.T) {
	path := writeCatalog(t, `
models:
  - name: alpha
    backend: openai
    upstream_model: gpt-4o
    fallback: ghost
`)
	if _, _, err := LoadCatalog(path, 1); err == nil {
		t.Fatalf("expected error for dangling fallback")
	}
}

func TestLoadCatalog_RejectsCycle(t *testing.T) {
	path := writeCatalog(t, `
models:
  - name: alpha
    backend: openai
    upstream_model: gpt-4o
    fallback: beta
  - name: beta
    backend: openai
    upstream_model: gpt-4o-mini
    fallback: alpha
`)
	if _, _, err := LoadCatalog(path, 3); err == nil {
		t.Fatalf("expected error for fallback cycle")
	}
}

func TestLoadCatalog_RejectsDuplicateNames(t *testing.T) {
	path := writeCatalog(t, `
models:
  - name: alpha
    backend: openai
    upstream_model: gpt-4o
  - name: alpha
    backend: mistral
    upstream_model: mistral-large-latest
`)
	if _, _, err := LoadCatalog(path, 1); err == nil {
		t.Fatalf("expected error for duplicate model name")
	}
}

func TestLoadCatalog_RejectsEmpty(t *testing.T) {
	path := writeCatalog(t, "models: []\n")
	if _, _, err := LoadCatalog(path, 1); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}
