package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo builds a repository with a main branch and a feature branch
// that adds one file and modifies another
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "--initial-branch=main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("x = 1\ny = 2\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")

	run("checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("x = 1\ny = 3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.py"), []byte("z = 9\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "feature change")
	run("checkout", "main")

	return dir
}

func TestOpen(t *testing.T) {
	dir := initTestRepo(t)

	repo, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, repo.Path())

	_, err = Open(filepath.Join(dir, "does-not-exist"))
	assert.Error(t, err)

	_, err = Open(t.TempDir()) // a directory, but not a repository
	assert.Error(t, err)
}

func TestResolveRef(t *testing.T) {
	repo, err := Open(initTestRepo(t))
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := repo.ResolveRef(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	_, err = repo.ResolveRef(ctx, "no-such-branch")
	assert.Error(t, err)
}

func TestValidateRefRejectsFlagsAndMetachars(t *testing.T) {
	repo, err := Open(initTestRepo(t))
	require.NoError(t, err)
	ctx := context.Background()

	for _, ref := range []string{"--upload-pack=evil", "-rf", "main; rm", "a b", ""} {
		_, err := repo.ResolveRef(ctx, ref)
		assert.Error(t, err, "ref %q", ref)
	}
}

func TestDiffAndChangedFiles(t *testing.T) {
	repo, err := Open(initTestRepo(t))
	require.NoError(t, err)
	ctx := context.Background()

	diff, err := repo.Diff(ctx, "main", "feature")
	require.NoError(t, err)
	assert.Contains(t, diff, "+y = 3")
	assert.Contains(t, diff, "new.py")

	files, err := repo.ListChangedFiles(ctx, "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "new.py"}, files)
}

func TestCheckout(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.Checkout(ctx, "feature"))
	data, err := os.ReadFile(filepath.Join(dir, "new.py"))
	require.NoError(t, err)
	assert.Equal(t, "z = 9\n", string(data))

	require.NoError(t, repo.Checkout(ctx, "main"))
	_, err = os.Stat(filepath.Join(dir, "new.py"))
	assert.True(t, os.IsNotExist(err))
}
