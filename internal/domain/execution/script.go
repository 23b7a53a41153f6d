package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Language identifies the runtime module able to execute a script.
type Language string

const (
	LanguageGo     Language = "go"
	LanguagePython Language = "python"
)

// LanguageForPath derives the script language from a file extension.
func LanguageForPath(path string) (Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LanguageGo, nil
	case ".py":
		return LanguagePython, nil
	default:
		return "", fmt.Errorf("unsupported script extension %q", filepath.Ext(path))
	}
}

// ScriptHandle identifies a script to run. It is either backed by a file on
// disk or by an in-memory source blob. A ScriptHandle is immutable.
type ScriptHandle struct {
	name     string
	path     string
	source   string
	workdir  string
	language Language
	inline   bool
}

// NewFileHandle returns a handle for the script stored at path. The working
// directory is the parent directory of path.
func NewFileHandle(path string) (ScriptHandle, error) {
	if path == "" {
		return ScriptHandle{}, fmt.Errorf("script path must be provided")
	}
	lang, err := LanguageForPath(path)
	if err != nil {
		return ScriptHandle{}, err
	}

	var workdir string
	if dir := filepath.Dir(path); dir != "." || strings.ContainsRune(path, filepath.Separator) {
		workdir = dir
	}

	return ScriptHandle{
		name:     filepath.Base(path),
		path:     path,
		workdir:  workdir,
		language: lang,
	}, nil
}

// NewInlineHandle returns a handle for in-memory source. workdir may be empty
// when the caller has no directory to offer.
func NewInlineHandle(name string, lang Language, source, workdir string) ScriptHandle {
	if name == "" {
		name = "inline"
	}
	return ScriptHandle{
		name:     name,
		source:   source,
		workdir:  workdir,
		language: lang,
		inline:   true,
	}
}

func (h ScriptHandle) Name() string       { return h.name }
func (h ScriptHandle) Path() string       { return h.path }
func (h ScriptHandle) Language() Language { return h.language }
func (h ScriptHandle) Inline() bool       { return h.inline }

// WorkingDir reports the directory used for relative path resolution and
// whether one could be determined.
func (h ScriptHandle) WorkingDir() (string, bool) {
	return h.workdir, h.workdir != ""
}

// ReadSource returns the script source, reading it from disk for file handles.
func (h ScriptHandle) ReadSource() (string, error) {
	if h.inline {
		return h.source, nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return "", fmt.Errorf("read script %s: %w", h.path, err)
	}
	return string(data), nil
}

func (h ScriptHandle) String() string {
	if h.inline {
		return h.name
	}
	return h.path
}
