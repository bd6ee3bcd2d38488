package changeset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/gitstore/gitstoretest"
)

func TestPluginNames(t *testing.T) {
	got := PluginNames([]string{
		"plugins/b/plugin.yaml",
		"plugins/a/thumbnail.png",
		"plugins/a/plugin.yaml",
		"plugins/_template/plugin.yaml",
		"plugins/README.md",
		"docs/plugins/x/y",
		"README.md",
	})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestIsZeroSHA(t *testing.T) {
	assert.True(t, IsZeroSHA(""))
	assert.True(t, IsZeroSHA("  "))
	assert.True(t, IsZeroSHA(strings.Repeat("0", 40)))
	assert.False(t, IsZeroSHA("0000a"))
	assert.False(t, IsZeroSHA("abc123"))
}

func TestDetect(t *testing.T) {
	r := gitstoretest.New(t)
	r.WriteString("plugins/a/plugin.yaml", "a")
	r.WriteString("plugins/b/plugin.yaml", "b")
	r.WriteString("plugins/_hidden/plugin.yaml", "h")
	base := r.Commit("base")
	r.WriteString("plugins/b/plugin.yaml", "b2")
	r.WriteString("plugins/c/plugin.yaml", "c")
	r.WriteString("README.md", "x")
	head := r.Commit("change")

	d := New(Config{Source: r.Store()})
	ctx := context.Background()

	names, err := d.Detect(ctx, Range{Before: base, After: head})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names)

	names, err = d.Detect(ctx, Range{Before: strings.Repeat("0", 40), After: head})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	names, err = d.Detect(ctx, Range{Before: base, After: head, All: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, err = d.Detect(ctx, Range{Before: base})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestDetectRenameCoversBothFolders(t *testing.T) {
	r := gitstoretest.New(t)
	content := "title: same\ndescription: identical content so the diff pairs it as a rename\n"
	r.WriteString("plugins/old/plugin.yaml", content)
	base := r.Commit("base")
	r.Remove("plugins/old/plugin.yaml")
	r.WriteString("plugins/new/plugin.yaml", content)
	head := r.Commit("rename")

	names, err := New(Config{Source: r.Store()}).Detect(context.Background(), Range{Before: base, After: head})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, names)
}

func TestDetectTooManyPlugins(t *testing.T) {
	r := gitstoretest.New(t)
	for i := 0; i < 4; i++ {
		r.WriteString(fmt.Sprintf("plugins/p%d/plugin.yaml", i), "x")
	}
	head := r.Commit("many")

	_, err := New(Config{Source: r.Store(), MaxPlugins: 3}).Detect(context.Background(), Range{After: head})
	assert.Equal(t, domain.CodeTooManyPlugins, domain.CodeOf(err))

	names, err := New(Config{Source: r.Store(), MaxPlugins: 4}).Detect(context.Background(), Range{After: head})
	require.NoError(t, err)
	assert.Len(t, names, 4)
}
