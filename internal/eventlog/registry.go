package eventlog

import (
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// Registry maps symbolic names (action kinds, user names) to small
// persistent integer codes, allocating a fresh code for names observed
// for the first time and persisting the mapping as JSON.
type Registry struct {
	mu   sync.Mutex
	path string

	NameToCode map[string]uint32 `json:"name_to_code"`
	next       uint32
}

// OpenRegistry loads path if it exists, or starts an empty registry
// that will be created on first Code allocation.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, NameToCode: map[string]uint32{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &r.NameToCode); err != nil {
		return nil, err
	}
	for _, code := range r.NameToCode {
		if code >= r.next {
			r.next = code + 1
		}
	}
	return r, nil
}

// Code returns the registered code for name, allocating and persisting
// a fresh one if name has not been seen before.
func (r *Registry) Code(name string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.NameToCode[name]; ok {
		return code, nil
	}
	code := r.next
	r.next++
	r.NameToCode[name] = code
	if err := r.saveLocked(); err != nil {
		return 0, err
	}
	return code, nil
}

// ErrUnknownCode is returned by Name when code was never registered —
// the UnknownActionCode/UnknownUserCode taxonomy entries.
type ErrUnknownCode struct {
	Code uint32
}

func (e *ErrUnknownCode) Error() string {
	return "eventlog: unknown registry code"
}

// Name resolves code back to its symbolic name.
func (r *Registry) Name(code uint32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, c := range r.NameToCode {
		if c == code {
			return name, nil
		}
	}
	return "", &ErrUnknownCode{code}
}

func (r *Registry) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.NameToCode, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
