package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultName is the base name of fragment files.
const DefaultName = "spec"

// Extensions lists the accepted fragment file extensions in lookup order.
var Extensions = []string{".json", ".yaml", ".yml"}

// ErrNoFragment is returned when a directory level holds no fragment file.
var ErrNoFragment = errors.New("fragment not found")

// ParseError reports a fragment file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse fragment %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FindFile returns the first existing file named name plus one of Extensions
// inside dir.
func FindFile(dir, name string) (string, bool) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// ReadFragment reads the fragment called name from dir. It returns
// ErrNoFragment when no such file exists.
func ReadFragment(dir, name string) (Fragment, string, error) {
	path, ok := FindFile(dir, name)
	if !ok {
		return nil, "", ErrNoFragment
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	return f, path, nil
}

// ReadFile decodes one fragment file. The format is chosen by extension.
func ReadFile(path string) (Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}
	return Decode(path, data)
}

// Decode parses data as JSON or YAML depending on the extension of name. An
// empty document decodes to an empty fragment.
func Decode(name string, data []byte) (Fragment, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Fragment{}, nil
	}
	var raw any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &ParseError{Path: name, Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ParseError{Path: name, Err: err}
		}
		raw = Normalize(raw)
	}
	m, ok := AsMap(raw)
	if !ok {
		return nil, &ParseError{Path: name, Err: errors.New("document root must be an object")}
	}
	return Fragment(m), nil
}

// DecodeInto decodes the file at path into out using the same format rules as
// ReadFile. Struct fields need both json and yaml tags.
func DecodeInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	}
	return nil
}
