package generate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparklab/cmd/cmdutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "sparklab", SilenceUsage: true, SilenceErrors: true}
	cmdutil.AddGlobalFlags(root)
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"generate", "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--output-dir", dir, "--sales", "50")
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join(dir, "customers.csv")+"\t8\n")
	assert.Contains(t, out, filepath.Join(dir, "products.csv")+"\t8\n")
	assert.Contains(t, out, filepath.Join(dir, "sales.csv")+"\t50\n")

	sales, err := os.ReadFile(filepath.Join(dir, "sales.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(sales)), "\n")
	assert.Len(t, lines, 51, "header plus one line per sale")
}

func TestGenerate_SameSeedSameFiles(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	_, err := execute(t, "--output-dir", a, "--seed", "7", "--format", "json")
	require.NoError(t, err)
	_, err = execute(t, "--output-dir", b, "--seed", "7", "--format", "json")
	require.NoError(t, err)

	for _, name := range []string{"customers.json", "products.json", "sales.json"} {
		first, err := os.ReadFile(filepath.Join(a, name))
		require.NoError(t, err)
		second, err := os.ReadFile(filepath.Join(b, name))
		require.NoError(t, err)
		assert.Equal(t, first, second, name)
	}
}

func TestGenerate_InvalidCounts(t *testing.T) {
	_, err := execute(t, "--output-dir", t.TempDir(), "--customers", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one customer")
}

func TestGenerate_UnknownFormat(t *testing.T) {
	_, err := execute(t, "--output-dir", t.TempDir(), "--format", "parquet")
	assert.Error(t, err)
}

func TestGenerate_IgnoresStreamSettings(t *testing.T) {
	t.Setenv("SPARKLAB_SIMULATE_POLICY", "block")
	t.Setenv("SPARKLAB_SIMULATE_CODEC", "protobuf")
	t.Setenv("SPARKLAB_SIMULATE_PARTITIONS", "0")

	_, err := execute(t, "--output-dir", t.TempDir(), "--sales", "5")
	assert.NoError(t, err)
}
