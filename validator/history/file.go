package history

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fileStoreName 主目录下的记录文件名。
const fileStoreName = ".lkhist"

// FileStore 用户主目录下的明文 key=value 记录文件。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore 创建使用 $HOME/.lkhist 的文件后端。
// 主目录不可用时后端照常工作，只是所有读取均为无记录。
func NewFileStore() *FileStore {
	home, err := os.UserHomeDir()
	if err != nil {
		return &FileStore{}
	}
	return &FileStore{path: filepath.Join(home, fileStoreName)}
}

// NewFileStoreAt 创建使用指定路径的文件后端。
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{path: path}
}

// EarliestRun 返回该签名的最早运行时间，无记录或文件不可读时 ok 为 false。
func (f *FileStore) EarliestRun(signature string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	millis, ok := f.readEntries()[Fingerprint(signature)]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// SetEarliestRun 记录该签名的最早运行时间，保留其他签名的既有记录。
func (f *FileStore) SetEarliestRun(signature string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path == "" {
		return
	}
	entries := f.readEntries()
	entries[Fingerprint(signature)] = at.UnixMilli()
	f.writeEntries(entries)
}

func (f *FileStore) readEntries() map[string]int64 {
	entries := make(map[string]int64)
	if f.path == "" {
		return entries
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return entries
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		millis, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		entries[strings.TrimSpace(key)] = millis
	}
	return entries
}

func (f *FileStore) writeEntries(entries map[string]int64) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatInt(entries[k], 10))
		sb.WriteByte('\n')
	}
	os.WriteFile(f.path, []byte(sb.String()), 0600)
}
