package validator

import (
	"bytes"
	"crypto/dsa"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"math/big"

	"license-kit/keys"
)

// ErrUnsupportedKey 公钥既不是 DSA 也不是 RSA 编码
var ErrUnsupportedKey = errors.New("无法识别的公钥算法")

// codec 签名校验器。构造时按公钥编码确定算法，之后不再改变。
// verify 不传播底层错误，一切失败都视作签名不匹配。
type codec interface {
	verify(canonical, signature []byte) bool
}

// newCodec 解析十六进制 SPKI 公钥并选定校验算法。
func newCodec(publicKeyHex string) (codec, error) {
	pub, err := keys.ParsePublicKeyHex(publicKeyHex)
	if err != nil {
		return nil, err
	}
	switch k := pub.(type) {
	case *dsa.PublicKey:
		return &dsaCodec{key: k}, nil
	case *rsa.PublicKey:
		return &rsaCodec{key: k}, nil
	default:
		return nil, ErrUnsupportedKey
	}
}

// dsaCodec SHA1withDSA 校验。
type dsaCodec struct {
	key *dsa.PublicKey
}

func (c *dsaCodec) verify(canonical, signature []byte) bool {
	r, s, err := keys.ParseSignature(signature)
	if err != nil {
		return false
	}
	digest := sha1.Sum(canonical)
	return dsa.Verify(c.key, digest[:], r, s)
}

// rsaCodec 遗留 RSA 许可证的校验路径：用公钥做一次原始模幂运算，
// 剥离 PKCS#1 v1.5 类型 1 填充，再与独立计算的 SHA-1 摘要逐字节比较。
// 仅为兼容既有 RSA 许可证保留。
type rsaCodec struct {
	key *rsa.PublicKey
}

func (c *rsaCodec) verify(canonical, signature []byte) bool {
	payload, ok := recoverSignedPayload(c.key, signature)
	if !ok {
		return false
	}
	digest := sha1.Sum(canonical)
	return bytes.Equal(payload, digest[:])
}

// recoverSignedPayload 还原私钥方加密的摘要字节。
func recoverSignedPayload(key *rsa.PublicKey, signature []byte) ([]byte, bool) {
	k := (key.N.BitLen() + 7) / 8
	if len(signature) != k || k < 11 {
		return nil, false
	}
	c := new(big.Int).SetBytes(signature)
	if c.Cmp(key.N) >= 0 {
		return nil, false
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(key.E)), key.N)
	em := m.FillBytes(make([]byte, k))

	// 期望块格式: 0x00 0x01 0xff... 0x00 payload
	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, false
	}
	i := 2
	for ; i < k; i++ {
		if em[i] == 0x00 {
			break
		}
		if em[i] != 0xff {
			return nil, false
		}
	}
	if i-2 < 8 || i == k {
		return nil, false
	}
	return em[i+1:], true
}
