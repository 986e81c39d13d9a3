package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"open notepad", "open_notepad"},
		{"a/b\\c", "a_b_c"},
		{"../etc/passwd", "__etc_passwd"},
		{strings.Repeat("x", 40), strings.Repeat("x", MaxNameLen)},
	}
	for _, tt := range tests {
		got, err := SanitizeName(tt.in)
		if err != nil {
			t.Errorf("SanitizeName(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizeName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}

	for _, bad := range []string{"", "   ", "..", "/"} {
		if _, err := SanitizeName(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("SanitizeName(%q): expected ErrInvalidName, got %v", bad, err)
		}
	}
}

func TestScripts(t *testing.T) {
	s := newStore(t)

	if err := s.SaveScript("open notepad", "GUI r\nSTRING notepad\nENTER"); err != nil {
		t.Fatalf("SaveScript failed: %v", err)
	}
	if err := s.SaveScript("lock", "GUI l"); err != nil {
		t.Fatalf("SaveScript failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "scripts_open_notepad.txt")); err != nil {
		t.Errorf("Expected script file on disk: %v", err)
	}

	names, err := s.ListScripts()
	if err != nil {
		t.Fatalf("ListScripts failed: %v", err)
	}
	if diff := cmp.Diff([]string{"lock", "open notepad"}, names); diff != "" {
		t.Errorf("ListScripts mismatch (-want +got):\n%s", diff)
	}

	got, err := s.LoadScript("open notepad")
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	if got != "GUI r\nSTRING notepad\nENTER" {
		t.Errorf("Unexpected script content %q", got)
	}

	if err := s.DeleteScript("lock"); err != nil {
		t.Fatalf("DeleteScript failed: %v", err)
	}
	if _, err := s.LoadScript("lock"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteScript("lock"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestScriptNameCannotEscape(t *testing.T) {
	s := newStore(t)
	if err := s.SaveScript("../../escape", "ENTER"); err != nil {
		t.Fatalf("SaveScript failed: %v", err)
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "scripts_____escape.txt" {
		t.Errorf("Unexpected directory contents: %v", entries)
	}
}

func TestQuickActions(t *testing.T) {
	s := newStore(t)

	empty, err := s.QuickActions("Windows")
	if err != nil {
		t.Fatalf("QuickActions failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no actions, got %v", empty)
	}

	for _, a := range []QuickAction{
		{Cmd: "GUI_R", Label: "Run"},
		{Cmd: "GUI_D", Label: "Desktop"},
		{Cmd: "CTRL_ALT_DEL", Label: "Task manager", Class: "danger"},
	} {
		if err := s.SaveQuickAction("Windows", a); err != nil {
			t.Fatalf("SaveQuickAction failed: %v", err)
		}
	}
	if err := s.SaveQuickAction("Windows", QuickAction{Cmd: "GUI_D", Label: "Show desktop"}); err != nil {
		t.Fatalf("SaveQuickAction failed: %v", err)
	}
	if err := s.SaveQuickAction("Windows", QuickAction{Label: "nothing"}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName for empty command, got %v", err)
	}

	got, _ := s.QuickActions("Windows")
	want := []QuickAction{
		{Cmd: "GUI_R", Label: "Run"},
		{Cmd: "GUI_D", Label: "Show desktop"},
		{Cmd: "CTRL_ALT_DEL", Label: "Task manager", Class: "danger"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("QuickActions mismatch (-want +got):\n%s", diff)
	}

	if err := s.ReorderQuickActions("Windows", []string{"CTRL_ALT_DEL", "GUI_R"}); err != nil {
		t.Fatalf("ReorderQuickActions failed: %v", err)
	}
	got, _ = s.QuickActions("Windows")
	var order []string
	for _, a := range got {
		order = append(order, a.Cmd)
	}
	if diff := cmp.Diff([]string{"CTRL_ALT_DEL", "GUI_R", "GUI_D"}, order); diff != "" {
		t.Errorf("Reorder mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteQuickAction("Windows", "GUI_R"); err != nil {
		t.Fatalf("DeleteQuickAction failed: %v", err)
	}
	if err := s.DeleteQuickAction("Windows", "GUI_R"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	got, _ = s.QuickActions("Windows")
	if len(got) != 2 {
		t.Errorf("Expected 2 actions, got %d", len(got))
	}

	if err := s.DeleteAllQuickActions("Windows"); err != nil {
		t.Fatalf("DeleteAllQuickActions failed: %v", err)
	}
	got, _ = s.QuickActions("Windows")
	if len(got) != 0 {
		t.Errorf("Expected no actions, got %v", got)
	}
}

func TestCustomOS(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"ChromeOS", "Haiku", "ChromeOS"} {
		if err := s.AddCustomOS(name); err != nil {
			t.Fatalf("AddCustomOS(%q) failed: %v", name, err)
		}
	}
	list, err := s.CustomOS()
	if err != nil {
		t.Fatalf("CustomOS failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ChromeOS", "Haiku"}, list); diff != "" {
		t.Errorf("CustomOS mismatch (-want +got):\n%s", diff)
	}

	if err := s.SaveQuickAction("Haiku", QuickAction{Cmd: "GUI_SPACE", Label: "Deskbar"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCustomOS("Haiku"); err != nil {
		t.Fatalf("DeleteCustomOS failed: %v", err)
	}
	if actions, _ := s.QuickActions("Haiku"); len(actions) != 0 {
		t.Errorf("Expected quick actions to be removed with the OS, got %v", actions)
	}
	if err := s.DeleteCustomOS("Haiku"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	list, _ = s.CustomOS()
	if diff := cmp.Diff([]string{"ChromeOS"}, list); diff != "" {
		t.Errorf("CustomOS mismatch (-want +got):\n%s", diff)
	}
}
