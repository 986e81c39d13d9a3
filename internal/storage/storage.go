// Package storage keeps named Ducky scripts, per-OS quick actions and the
// custom OS list in a data directory.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	// MaxNameLen bounds the sanitized part of a file name.
	MaxNameLen = 32

	scriptPrefix = "scripts_"
	scriptExt    = ".txt"
	actionPrefix = "quickactions_"
	customOSFile = "customos.json"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("invalid name")
)

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_", "..", "_")

// SanitizeName maps a user supplied name onto a file name component.
func SanitizeName(name string) (string, error) {
	clean := nameReplacer.Replace(strings.TrimSpace(name))
	if len(clean) > MaxNameLen {
		clean = clean[:MaxNameLen]
	}
	if clean == "" || strings.Trim(clean, "_.") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// QuickAction is a button bound to a wire command for one OS.
type QuickAction struct {
	Cmd   string `json:"cmd"`
	Label string `json:"label"`
	Desc  string `json:"desc,omitempty"`
	Class string `json:"class,omitempty"`
}

// Store is a directory backed store. All methods are safe for concurrent use.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates dir if needed and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) scriptPath(name string) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, scriptPrefix+clean+scriptExt), nil
}

// SaveScript writes script under name, replacing any previous content.
func (s *Store) SaveScript(name, script string) error {
	path, err := s.scriptPath(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(path, []byte(script)); err != nil {
		return fmt.Errorf("could not save script %q: %w", name, err)
	}
	log.Printf("[Storage] Script saved: %s", filepath.Base(path))
	return nil
}

// LoadScript returns the script stored under name.
func (s *Store) LoadScript(name string) (string, error) {
	path, err := s.scriptPath(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("script %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("could not read script %q: %w", name, err)
	}
	return string(data), nil
}

// DeleteScript removes the script stored under name.
func (s *Store) DeleteScript(name string) error {
	path, err := s.scriptPath(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("script %q: %w", name, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("could not delete script %q: %w", name, err)
	}
	log.Printf("[Storage] Script deleted: %s", filepath.Base(path))
	return nil
}

// ListScripts returns the display names of all stored scripts, sorted.
// Underscores in file names are shown as spaces.
func (s *Store) ListScripts() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("could not list scripts: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, scriptPrefix) || !strings.HasSuffix(n, scriptExt) {
			continue
		}
		n = strings.TrimSuffix(strings.TrimPrefix(n, scriptPrefix), scriptExt)
		names = append(names, strings.ReplaceAll(n, "_", " "))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) actionsPath(osName string) (string, error) {
	clean, err := SanitizeName(osName)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, actionPrefix+clean+".json"), nil
}

// QuickActions returns the actions for osName in display order.
func (s *Store) QuickActions(osName string) ([]QuickAction, error) {
	path, err := s.actionsPath(osName)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := []QuickAction{}
	if err := readJSON(path, &actions); err != nil {
		return nil, fmt.Errorf("could not load quick actions for %q: %w", osName, err)
	}
	return actions, nil
}

// SaveQuickAction appends a, or replaces the action with the same command.
func (s *Store) SaveQuickAction(osName string, a QuickAction) error {
	if strings.TrimSpace(a.Cmd) == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidName)
	}
	return s.updateActions(osName, func(actions []QuickAction) ([]QuickAction, error) {
		for i := range actions {
			if actions[i].Cmd == a.Cmd {
				actions[i] = a
				return actions, nil
			}
		}
		return append(actions, a), nil
	})
}

// DeleteQuickAction removes the action bound to cmd.
func (s *Store) DeleteQuickAction(osName, cmd string) error {
	return s.updateActions(osName, func(actions []QuickAction) ([]QuickAction, error) {
		for i := range actions {
			if actions[i].Cmd == cmd {
				return append(actions[:i], actions[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("quick action %q: %w", cmd, ErrNotFound)
	})
}

// ReorderQuickActions puts the actions in the order of cmds. Actions not
// named in cmds keep their relative order after the named ones.
func (s *Store) ReorderQuickActions(osName string, cmds []string) error {
	return s.updateActions(osName, func(actions []QuickAction) ([]QuickAction, error) {
		rank := make(map[string]int, len(cmds))
		for i, c := range cmds {
			if _, dup := rank[c]; !dup {
				rank[c] = i
			}
		}
		pos := func(a QuickAction) int {
			if r, ok := rank[a.Cmd]; ok {
				return r
			}
			return len(cmds)
		}
		sort.SliceStable(actions, func(i, j int) bool { return pos(actions[i]) < pos(actions[j]) })
		return actions, nil
	})
}

// DeleteAllQuickActions removes every action stored for osName.
func (s *Store) DeleteAllQuickActions(osName string) error {
	path, err := s.actionsPath(osName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeIfExists(path)
}

func (s *Store) updateActions(osName string, fn func([]QuickAction) ([]QuickAction, error)) error {
	path, err := s.actionsPath(osName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := []QuickAction{}
	if err := readJSON(path, &actions); err != nil {
		return fmt.Errorf("could not load quick actions for %q: %w", osName, err)
	}
	actions, err = fn(actions)
	if err != nil {
		return err
	}
	return writeJSON(path, actions)
}

// CustomOS returns the user defined OS names in insertion order.
func (s *Store) CustomOS() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []string{}
	if err := readJSON(filepath.Join(s.dir, customOSFile), &list); err != nil {
		return nil, fmt.Errorf("could not load custom OS list: %w", err)
	}
	return list, nil
}

// AddCustomOS adds name to the list. Adding an existing name is a no-op.
func (s *Store) AddCustomOS(name string) error {
	name = strings.TrimSpace(name)
	if _, err := SanitizeName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, customOSFile)
	list := []string{}
	if err := readJSON(path, &list); err != nil {
		return fmt.Errorf("could not load custom OS list: %w", err)
	}
	for _, n := range list {
		if n == name {
			return nil
		}
	}
	log.Printf("[Storage] Custom OS added: %s", name)
	return writeJSON(path, append(list, name))
}

// DeleteCustomOS removes name and all of its quick actions.
func (s *Store) DeleteCustomOS(name string) error {
	actions, err := s.actionsPath(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, customOSFile)
	list := []string{}
	if err := readJSON(path, &list); err != nil {
		return fmt.Errorf("could not load custom OS list: %w", err)
	}
	kept := list[:0]
	for _, n := range list {
		if n != name {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(list) {
		return fmt.Errorf("custom OS %q: %w", name, ErrNotFound)
	}
	if err := writeJSON(path, kept); err != nil {
		return err
	}
	log.Printf("[Storage] Custom OS deleted: %s", name)
	return removeIfExists(actions)
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
