package resource

import (
	"log/slog"
	"testing"

	"github.com/an-empty-string/amethyst/internal/gemini"
)

func TestRegisterDuplicateFails(t *testing.T) {
	factory := func(args map[string]any, logger *slog.Logger) (gemini.Resource, error) {
		return nil, nil
	}

	if err := Register("test-dup", factory); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register("test-dup", factory); err == nil {
		t.Fatal("expected second Register of the same name to fail")
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	factory := func(args map[string]any, logger *slog.Logger) (gemini.Resource, error) {
		return nil, nil
	}
	MustRegister("test-must-dup", factory)

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate name")
		}
	}()
	MustRegister("test-must-dup", factory)
}

func TestBuildUnknownType(t *testing.T) {
	_, err := Build(map[string]any{"type": "no-such-type"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown resource type")
	}
}

func TestBuildMissingType(t *testing.T) {
	_, err := Build(map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestBuildRedirect(t *testing.T) {
	res, err := Build(map[string]any{
		"type":      "redirect",
		"to":        "gemini://elsewhere.example/mirror",
		"permanent": true,
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := res.(*RedirectResource); !ok {
		t.Fatalf("expected *RedirectResource, got %T", res)
	}
}
