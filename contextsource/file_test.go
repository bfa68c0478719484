package contextsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowmind-ai/pipeline/promptcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSectionFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileLoader_LoadsExistingSectionsOnStart(t *testing.T) {
	dir := t.TempDir()
	writeSectionFile(t, dir, "core.yaml", "id: core\nname: Core\ncontent: \"Always answer politely.\"\nalwaysInclude: true\npriority: 10\n")

	l, err := NewFileLoader(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	sections, err := l.Load(context.Background(), promptcontext.LoadRequest{})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "core", sections[0].ID)
	assert.True(t, sections[0].AlwaysInclude)
}

func TestFileLoader_PicksUpNewFileAfterStart(t *testing.T) {
	dir := t.TempDir()
	writeSectionFile(t, dir, "core.yaml", "id: core\ncontent: \"base\"\nalwaysInclude: true\n")

	l, err := NewFileLoader(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	writeSectionFile(t, dir, "help.yaml", "id: help\ncontent: \"help text\"\ntopics: [\"help\"]\npriority: 1\n")

	require.Eventually(t, func() bool {
		sections, err := l.Load(context.Background(), promptcontext.LoadRequest{})
		return err == nil && len(sections) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileLoader_IgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeSectionFile(t, dir, "core.yaml", "id: core\ncontent: \"base\"\n")
	writeSectionFile(t, dir, "README.md", "not a section")

	l, err := NewFileLoader(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	sections, err := l.Load(context.Background(), promptcontext.LoadRequest{})
	require.NoError(t, err)
	assert.Len(t, sections, 1)
}
