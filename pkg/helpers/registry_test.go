package helpers_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/adapters/process"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/helpers"
	"github.com/aretw0/ussdflow/pkg/ports"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := helpers.NewRegistry()

	require.NoError(t, reg.Register("always", func(ctx context.Context, input string, vars map[string]any) (bool, error) {
		return true, nil
	}))
	require.NoError(t, reg.Register("menu", func(ctx context.Context, s *domain.Session, hc domain.HandlerContext) (*domain.ScreenResult, error) {
		return &domain.ScreenResult{Text: "hi"}, nil
	}))
	require.NoError(t, reg.Register("typed", ports.ValidatorFunc(func(context.Context, string, map[string]any) (bool, error) {
		return false, nil
	})))

	v, ok := reg.Validator("always")
	require.True(t, ok)
	valid, err := v.Validate(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.True(t, valid)

	h, ok := reg.Handler("menu")
	require.True(t, ok)
	res, err := h.Handle(context.Background(), nil, domain.HandlerContext{})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)

	// wrong shape is reported as absent
	_, ok = reg.Handler("always")
	assert.False(t, ok)
	_, ok = reg.Validator("menu")
	assert.False(t, ok)

	assert.Equal(t, []string{"always", "menu", "typed"}, reg.Names())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_Absent(t *testing.T) {
	reg := helpers.NewRegistry()

	assert.NotPanics(t, func() {
		_, ok := reg.Get("missing")
		assert.False(t, ok)
		_, ok = reg.Validator("missing")
		assert.False(t, ok)
		_, ok = reg.Handler("missing")
		assert.False(t, ok)
	})
	assert.False(t, reg.Unregister("missing"))
}

func TestRegistry_RegisterRejects(t *testing.T) {
	reg := helpers.NewRegistry()
	assert.Error(t, reg.Register("", ports.ValidatorFunc(nil)))
	assert.Error(t, reg.Register("bad", "not a function"))
	assert.Error(t, reg.Register("bad", func() {}))
}

func TestRegistry_Unregister(t *testing.T) {
	reg := helpers.NewRegistry()
	require.NoError(t, reg.Register("x", ports.ValidatorFunc(func(context.Context, string, map[string]any) (bool, error) {
		return true, nil
	})))
	assert.True(t, reg.Unregister("x"))
	_, ok := reg.Get("x")
	assert.False(t, ok)
}

func TestRegistry_Discover(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("helper scripts use sh")
	}
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("billing/validateAmount.yaml", "kind: validator\ncommand: sh\nargs: [\"-c\", \"echo true\"]\n")
	write("accounts/list.json", `{"kind":"handler","command":"sh","args":["-c","echo Pick an account"]}`)
	write("broken.yml", "kind: validator\n")
	write("notes.txt", "not a manifest")

	reg := helpers.NewRegistry()
	n, err := reg.Discover(context.Background(), root, process.NewRunner())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"accounts/list", "billing/validateAmount"}, reg.Names())

	v, ok := reg.Validator("billing/validateAmount")
	require.True(t, ok)
	valid, err := v.Validate(context.Background(), "10", nil)
	require.NoError(t, err)
	assert.True(t, valid)

	h, ok := reg.Handler("accounts/list")
	require.True(t, ok)
	res, err := h.Handle(context.Background(), domain.NewSession("s", time.Now()), domain.HandlerContext{Phase: domain.PhaseRender})
	require.NoError(t, err)
	assert.Equal(t, "Pick an account", res.Text)
}

func TestRegistry_Discover_MissingRoot(t *testing.T) {
	n, err := helpers.NewRegistry().Discover(context.Background(), filepath.Join(t.TempDir(), "none"), process.NewRunner())
	require.NoError(t, err)
	assert.Zero(t, n)
}
