package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const defaultDebounce = 300 * time.Millisecond

// Library holds the skill records loaded from a directory of YAML files.
// A file holds either one skill mapping or a list of them.
type Library struct {
	dir      string
	logger   zerolog.Logger
	debounce time.Duration

	mu     sync.RWMutex
	skills []Skill
}

// NewLibrary loads every skill file under dir. An empty dir yields an empty
// library.
func NewLibrary(dir string, logger zerolog.Logger) (*Library, error) {
	l := &Library{
		dir:      dir,
		logger:   logger.With().Str("component", "skills").Logger(),
		debounce: defaultDebounce,
	}
	if dir == "" {
		return l, nil
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewStaticLibrary wraps an in-memory list of skills.
func NewStaticLibrary(skills ...Skill) *Library {
	snapshot := append([]Skill(nil), skills...)
	sortSkills(snapshot)
	return &Library{logger: zerolog.Nop(), skills: snapshot}
}

// Skills returns the skills active for track, sorted by name.
func (l *Library) Skills(track Track) []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Skill, 0, len(l.skills))
	for _, s := range l.skills {
		if s.AppliesTo(track) {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of loaded skills across all tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.skills)
}

// Reload re-reads the directory. On error the previous snapshot is kept.
func (l *Library) Reload() error {
	skills, err := loadDir(l.dir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.skills = skills
	l.mu.Unlock()

	l.logger.Info().Str("dir", l.dir).Int("count", len(skills)).Msg("Skills loaded")
	return nil
}

// Watch reloads the library whenever a skill file changes, until ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		return fmt.Errorf("skills directory is not configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create skills watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch skills directory: %w", err)
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSkillFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				l.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Skill file change detected")

				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(l.debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			}

		case <-reload:
			if err := l.Reload(); err != nil {
				l.logger.Error().Err(err).Msg("Failed to reload skills, keeping previous set")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error().Err(err).Msg("Skills watcher error")
		}
	}
}

func loadDir(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var (
		skills []Skill
		seen   = make(map[string]string)
	)
	for _, entry := range entries {
		if entry.IsDir() || !isSkillFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileSkills, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for _, s := range fileSkills {
			if prev, dup := seen[s.Name]; dup {
				return nil, fmt.Errorf("duplicate skill %q in %s (already defined in %s)", s.Name, entry.Name(), prev)
			}
			seen[s.Name] = entry.Name()
			skills = append(skills, s)
		}
	}

	sortSkills(skills)
	return skills, nil
}

func loadFile(path string) ([]Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse skill file %s: %w", filepath.Base(path), err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var skills []Skill
	switch root := doc.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills in %s: %w", filepath.Base(path), err)
		}
	case yaml.MappingNode:
		var s Skill
		if err := root.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode skill in %s: %w", filepath.Base(path), err)
		}
		skills = []Skill{s}
	default:
		return nil, fmt.Errorf("skill file %s must hold a mapping or a list", filepath.Base(path))
	}

	for _, s := range skills {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return skills, nil
}

func isSkillFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func sortSkills(skills []Skill) {
	sort.SliceStable(skills, func(i, j int) bool {
		return skills[i].Name < skills[j].Name
	})
}
