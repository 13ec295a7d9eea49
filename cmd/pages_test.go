package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/hotspot/internal/model"
)

// cliEnv points the CLI at a fresh SQLite database in a temp dir.
func cliEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("HOTSPOT_STORE_DRIVER", "sqlite")
	t.Setenv("HOTSPOT_STORE_DATABASE_URL", filepath.Join(dir, "hotspot.db"))
	t.Setenv("HOTSPOT_LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_PagesLifecycle(t *testing.T) {
	cliEnv(t)

	out, err := execute(t, "pages", "add", "https://acme.com/pricing")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(id, "page-"), out)

	out, err = execute(t, "pages", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "https://acme.com/pricing")

	out, err = execute(t, "pages", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "https://acme.com/pricing")
	assert.Contains(t, out, "LEADS")

	out, err = execute(t, "funnel", id)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "pages", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+id)

	_, err = execute(t, "pages", "get", id)
	assert.Error(t, err)
}

func TestCLI_ImportAndExport(t *testing.T) {
	dir := cliEnv(t)

	seedPath := filepath.Join(dir, "pages.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
pages:
  - url: https://acme.com/
  - url: https://acme.com/pricing
    track: [click, hover]
`), 0o644))

	out, err := execute(t, "import", seedPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "page-"))

	xlsxPath := filepath.Join(dir, "report.xlsx")
	_, err = execute(t, "export", xlsxPath)
	require.NoError(t, err)

	f, err := xlsx.OpenFile(xlsxPath)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Pages"]
	require.True(t, ok)
	assert.Len(t, sheet.Rows, 3)
}

func TestPageConfigFromFlags(t *testing.T) {
	cfg = memoryConfig()

	fresh := &cobra.Command{}
	fresh.Flags().Int("width", 0, "")
	fresh.Flags().Int("height", 0, "")
	fresh.Flags().Float64("downsample", 0, "")
	fresh.Flags().String("encoding", "", "")
	fresh.Flags().StringSlice("track", nil, "")

	pc, err := pageConfigFromFlags(fresh)
	require.NoError(t, err)
	assert.Nil(t, pc, "no flags keeps the service defaults")

	require.NoError(t, fresh.Flags().Set("width", "200"))
	require.NoError(t, fresh.Flags().Set("encoding", "BASE64"))
	require.NoError(t, fresh.Flags().Set("track", "context"))
	pc, err = pageConfigFromFlags(fresh)
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, 200, pc.View.Width)
	assert.Equal(t, 32, pc.View.Height)
	assert.Equal(t, model.EncodingBase64, pc.View.Encoding)
	assert.Equal(t, []model.Category{model.CategoryContext}, pc.Hotspot.Track)

	require.NoError(t, fresh.Flags().Set("track", "scroll"))
	_, err = pageConfigFromFlags(fresh)
	assert.Error(t, err)
}

func TestFormatPageList(t *testing.T) {
	var buf bytes.Buffer
	formatPageList(&buf, []model.PageSummary{{ID: "page-1", URL: "https://acme.com"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "URL")
	assert.Contains(t, lines[2], "page-1")
	assert.Contains(t, lines[2], "https://acme.com")
}

func TestFormatFunnel(t *testing.T) {
	c := model.NewPage("https://acme.com/c")
	b := model.NewPage("https://acme.com/b")
	c.Leads.Record(b.ID)
	c.Leads.Record(b.ID)

	var buf bytes.Buffer
	formatFunnel(&buf, []*model.Page{c, b})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], c.ID)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "2"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[3]), "-"))
}
