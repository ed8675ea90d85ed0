package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store は文字列のキーと値を保存する
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// YAMLStore はキーと値をYAMLファイルに保存する
type YAMLStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// OpenYAMLStore はファイルを読み込んで YAMLStore を作成する
// ファイルが存在しない場合は空の状態で始め、最初の Set で作成する
func OpenYAMLStore(path string) (*YAMLStore, error) {
	s := &YAMLStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}

	return s, nil
}

// Get は保存された値を返す
func (s *YAMLStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

// Set は値を保存し、ファイルに書き出す
func (s *YAMLStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.values[key]
	s.values[key] = value

	if err := s.flushLocked(); err != nil {
		if existed {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// flushLocked は一時ファイルに書いてから置き換える
func (s *YAMLStore) flushLocked() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("設定のシリアライズに失敗: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("設定ファイルの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("設定ファイルの書き込みに失敗: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("設定ファイルの置き換えに失敗: %w", err)
	}
	return nil
}

// MemoryStore はメモリ上の Store 実装
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore は新しい MemoryStore を作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get は保存された値を返す
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok
}

// Set は値を保存する
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}
