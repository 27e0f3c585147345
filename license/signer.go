package license

import (
	"crypto/dsa"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"license-kit/keys"
)

// demoPeriod 演示模式下强制写入的有效期长度
const demoPeriod = 14 * 24 * time.Hour

// ErrAlreadySigned 许可证已完成签名，不能重复签名
var ErrAlreadySigned = errors.New("许可证已完成签名")

// ErrNilPrivateKey 签名私钥不能为空
var ErrNilPrivateKey = errors.New("签名私钥不能为空")

// Signer 使用单个 DSA 私钥为任意数量的许可证签名。
// 演示模式下，签名前会将许可证的过期日期强制改写为生效日期后 14 天。
type Signer struct {
	privateKey *dsa.PrivateKey
	demoMode   bool
}

// SignerOption 签名器选项
type SignerOption func(*Signer)

// WithDemoMode 设置是否以演示模式签名。
func WithDemoMode(demo bool) SignerOption {
	return func(s *Signer) {
		s.demoMode = demo
	}
}

// NewSigner 创建签名器。
func NewSigner(privateKey *dsa.PrivateKey, opts ...SignerOption) (*Signer, error) {
	if privateKey == nil {
		return nil, ErrNilPrivateKey
	}

	s := &Signer{privateKey: privateKey}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DemoMode 返回签名器是否处于演示模式。
func (s *Signer) DemoMode() bool {
	return s.demoMode
}

// Sign 对许可证的规范字节序列计算 SHA1withDSA 签名并写入 signature 字段。
// 这是把许可证翻转为不可变状态的唯一入口；
// 已签名的许可证返回 ErrAlreadySigned。
func (s *Signer) Sign(l *License) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrAlreadySigned
	}

	if s.demoMode {
		start := l.dateValueLocked(keyStartDate)
		l.props[keyExpirationDate] = formatMillis(start.Add(demoPeriod))
	}

	digest := sha1.Sum(l.canonicalLocked())
	r, sg, err := dsa.Sign(rand.Reader, s.privateKey, digest[:])
	if err != nil {
		return fmt.Errorf("计算签名失败: %w", err)
	}

	der, err := keys.EncodeSignature(r, sg)
	if err != nil {
		return err
	}
	l.props[keySignature] = hex.EncodeToString(der)
	return nil
}
