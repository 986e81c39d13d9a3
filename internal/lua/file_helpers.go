package lua

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// sanitizeFilename checks for directory traversal and valid extension.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", errors.New("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName != name || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", errors.New("invalid filename")
	}
	return cleanName, nil
}

// macroPath returns the path of a macro file inside the macros directory,
// creating the directory on first use.
func (e *Engine) macroPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(e.macrosDir); os.IsNotExist(err) {
		log.Printf("[Lua] Creating macros directory: %s", e.macrosDir)
		if err := os.MkdirAll(e.macrosDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create macros directory: %w", err)
		}
	}
	return filepath.Join(e.macrosDir, cleanName), nil
}

// MacroCode reads the source of a macro.
func (e *Engine) MacroCode(name string) (string, error) {
	path, err := e.macroPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SaveMacroCode writes the source of a macro.
func (e *Engine) SaveMacroCode(name, code string) error {
	path, err := e.macroPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0644)
}

// DeleteMacro removes a macro file.
func (e *Engine) DeleteMacro(name string) error {
	path, err := e.macroPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// MacroList returns the sorted file names of all stored macros.
func (e *Engine) MacroList() ([]string, error) {
	macros := []string{}
	files, err := os.ReadDir(e.macrosDir)
	if err != nil {
		// A missing directory just means no macros yet.
		if os.IsNotExist(err) {
			return macros, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			macros = append(macros, file.Name())
		}
	}
	sort.Strings(macros)
	return macros, nil
}
