package history

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// 密封文件位置与密钥派生参数。
const (
	sealedDirName  = "licensekit"
	sealedFileName = "intg.dat"
	sealedSalt     = "licensekit_history_salt_v1"
	sealedInfo     = "licensekit_history_seal_v1"
)

var errSealedTooShort = errors.New("记录文件长度不足")

// SealedStore 用户配置目录下的加密记录文件（AES-256-GCM）。
// 密钥由主机特征派生；文件被篡改或无法解密时视为无记录，下次写入时重建。
type SealedStore struct {
	mu   sync.Mutex
	path string
	key  []byte
}

// NewSealedStore 创建使用用户配置目录下 licensekit/intg.dat 的加密后端。
// 配置目录不可用时后端照常工作，只是所有读取均为无记录。
func NewSealedStore() *SealedStore {
	dir, err := os.UserConfigDir()
	if err != nil {
		return &SealedStore{key: deriveSealKey()}
	}
	return &SealedStore{
		path: filepath.Join(dir, sealedDirName, sealedFileName),
		key:  deriveSealKey(),
	}
}

// NewSealedStoreAt 创建使用指定路径的加密后端。
func NewSealedStoreAt(path string) *SealedStore {
	return &SealedStore{path: path, key: deriveSealKey()}
}

// deriveSealKey 使用 HKDF 从主机名和固定盐值派生 32 字节密钥。
func deriveSealKey() []byte {
	hostname, _ := os.Hostname()
	salt := sha256.Sum256([]byte(sealedSalt))
	reader := hkdf.New(sha256.New, []byte(hostname+sealedSalt), salt[:], []byte(sealedInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		// 降级到简单哈希
		sum := sha256.Sum256([]byte(hostname + sealedInfo))
		return sum[:]
	}
	return key
}

// EarliestRun 返回该签名的最早运行时间，无记录或文件不可用时 ok 为 false。
func (s *SealedStore) EarliestRun(signature string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	millis, ok := s.readEntries()[Fingerprint(signature)]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// SetEarliestRun 记录该签名的最早运行时间，保留其他签名的既有记录。
func (s *SealedStore) SetEarliestRun(signature string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return
	}
	entries := s.readEntries()
	entries[Fingerprint(signature)] = at.UnixMilli()
	s.writeEntries(entries)
}

func (s *SealedStore) readEntries() map[string]int64 {
	entries := make(map[string]int64)
	if s.path == "" {
		return entries
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return entries
	}
	plaintext, err := s.open(data)
	if err != nil {
		// 文件损坏或被篡改，删除后视为无记录
		os.Remove(s.path)
		return entries
	}
	var decoded map[string]int64
	if err := json.Unmarshal(plaintext, &decoded); err != nil || decoded == nil {
		os.Remove(s.path)
		return entries
	}
	return decoded
}

func (s *SealedStore) writeEntries(entries map[string]int64) {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return
	}
	sealed, err := s.seal(plaintext)
	if err != nil {
		return
	}
	os.MkdirAll(filepath.Dir(s.path), 0755)
	os.WriteFile(s.path, sealed, 0600)
}

func (s *SealedStore) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *SealedStore) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errSealedTooShort
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
