package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkillFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLibrary_Load(t *testing.T) {
	t.Run("should load single and list files sorted by name", func(t *testing.T) {
		dir := t.TempDir()
		writeSkillFile(t, dir, "digest.yaml", `
name: weekly-digest
type: newsletter
instructions: Summarize the week.
tracks: [newsletter]
`)
		writeSkillFile(t, dir, "social.yml", `
- name: thread-writer
  type: social
  instructions: Write a thread.
  tracks: [social]
- name: announce
  type: any
  instructions: Announce the launch.
`)
		writeSkillFile(t, dir, "notes.txt", "ignored")

		lib, err := NewLibrary(dir, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, 3, lib.Len())

		newsletter := lib.Skills(TrackNewsletter)
		require.Len(t, newsletter, 2)
		assert.Equal(t, "announce", newsletter[0].Name)
		assert.Equal(t, "weekly-digest", newsletter[1].Name)

		social := lib.Skills(TrackSocial)
		require.Len(t, social, 2)
		assert.Equal(t, "thread-writer", social[1].Name)
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		dir := t.TempDir()
		writeSkillFile(t, dir, "a.yaml", "name: x\ninstructions: a\n")
		writeSkillFile(t, dir, "b.yaml", "name: x\ninstructions: b\n")

		_, err := NewLibrary(dir, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should reject unknown track", func(t *testing.T) {
		dir := t.TempDir()
		writeSkillFile(t, dir, "a.yaml", "name: x\ninstructions: a\ntracks: [podcast]\n")

		_, err := NewLibrary(dir, zerolog.Nop())
		assert.ErrorIs(t, err, ErrInvalidTrack)
	})

	t.Run("should reject missing instructions", func(t *testing.T) {
		dir := t.TempDir()
		writeSkillFile(t, dir, "a.yaml", "name: x\n")

		_, err := NewLibrary(dir, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should allow empty dir setting", func(t *testing.T) {
		lib, err := NewLibrary("", zerolog.Nop())
		require.NoError(t, err)
		assert.Empty(t, lib.Skills(TrackNewsletter))
	})

	t.Run("should fail for missing directory", func(t *testing.T) {
		_, err := NewLibrary(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestLibrary_Reload(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "a.yaml", "name: a\ninstructions: a\n")

	lib, err := NewLibrary(dir, zerolog.Nop())
	require.NoError(t, err)

	writeSkillFile(t, dir, "broken.yaml", "name: [\n")
	assert.Error(t, lib.Reload())
	assert.Equal(t, 1, lib.Len(), "previous snapshot should be kept")
}

func TestLibrary_Watch(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "a.yaml", "name: a\ninstructions: a\n")

	lib, err := NewLibrary(dir, zerolog.Nop())
	require.NoError(t, err)
	lib.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeSkillFile(t, dir, "b.yaml", "name: b\ninstructions: b\n")

	assert.Eventually(t, func() bool {
		return lib.Len() == 2
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStaticLibrary(t *testing.T) {
	lib := NewStaticLibrary(Skill{Name: "b", Instructions: "b"}, Skill{Name: "a", Instructions: "a"})
	got := lib.Skills(TrackSocial)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
}
