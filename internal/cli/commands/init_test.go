package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/internal/loader"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string)
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:    "init empty directory",
			args:    []string{},
			wantErr: false,
			wantFiles: []string{
				"structon.yaml",
				"units",
				"units/hello.json",
				".gitignore",
			},
		},
		{
			name:    "init example project",
			args:    []string{"--example"},
			wantErr: false,
			wantFiles: []string{
				"structon.yaml",
				"units/feed_watcher.json",
				"units/summarize_items.json",
				"units/pool_rescore.yaml",
				"plugins/textops.star",
				".gitignore",
			},
		},
		{
			name:    "init into named directory",
			args:    []string{"workspace"},
			wantErr: false,
			wantFiles: []string{
				"workspace/structon.yaml",
				"workspace/units/hello.json",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "structon.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "structon.yaml"), []byte("existing"), 0600)
			},
			args:    []string{"--force"},
			wantErr: false,
			wantFiles: []string{
				"structon.yaml",
				"units",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				path := filepath.Join(tmpDir, f)
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
	assert.NotNil(t, cmd.Flags().Lookup("example"), "--example flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile("structon.yaml")
	require.NoError(t, err, "failed to read structon.yaml")

	expectedContents := []string{
		"units_dir: units",
		"plugins_dir: plugins",
		"state_path:",
		"driver: sqlite",
		"name: mock",
	}

	for _, expected := range expectedContents {
		assert.Contains(t, string(content), expected, "config should contain %q", expected)
	}
}

// The example units must parse with the loader they will be fed to.
func TestInitExampleUnitsParse(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--example"})

	require.NoError(t, cmd.Execute())

	entries, err := os.ReadDir("units")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		u, err := loader.ParseFile(filepath.Join("units", entry.Name()))
		require.NoError(t, err, "unit %s should parse", entry.Name())
		assert.NotEmpty(t, u.ID)
	}
}
