// Package keys 提供许可证签名体系的密钥管理：
// DSA 密钥对的生成、十六进制 X.509/PKCS#8 编解码，以及密钥对文件的导入导出。
//
// 标准库的 x509 能解析 DSA 格式的公钥，但不再支持生成 DSA 编码，
// 因此 SubjectPublicKeyInfo 与 PKCS#8 的 DSA 结构在本包内按 ASN.1 手工定义。
package keys

import (
	"crypto"
	"crypto/dsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
)

// ErrInvalidPublicKey 无效公钥错误
var ErrInvalidPublicKey = errors.New("无效的公钥格式")

// ErrInvalidPrivateKey 无效私钥错误
var ErrInvalidPrivateKey = errors.New("无效的私钥格式")

// ErrKeyPairFile 密钥对文件格式错误
var ErrKeyPairFile = errors.New("密钥对文件缺少必要条目")

// oidDSA ANSI X9.57 中定义的 DSA 算法标识（1.2.840.10040.4.1）
var oidDSA = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}

// dsaParams Dss-Parms 参数块
type dsaParams struct {
	P *big.Int
	Q *big.Int
	G *big.Int
}

// dsaAlgorithm AlgorithmIdentifier（算法 OID + DSA 参数）
type dsaAlgorithm struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters dsaParams
}

// dsaPublicKeyInfo X.509 SubjectPublicKeyInfo，BIT STRING 内为 INTEGER y
type dsaPublicKeyInfo struct {
	Algorithm dsaAlgorithm
	PublicKey asn1.BitString
}

// dsaPrivateKeyInfo PKCS#8 PrivateKeyInfo，PrivateKey 八位组内为 INTEGER x
type dsaPrivateKeyInfo struct {
	Version    int
	Algorithm  dsaAlgorithm
	PrivateKey []byte
}

// dsaSignature DER 编码的 DSA 签名值（SHA1withDSA 的线上格式）
type dsaSignature struct {
	R *big.Int
	S *big.Int
}

// ==================== 密钥对生成 ====================

// GenerateKeyPair 生成一对用于许可证签名的 DSA 密钥（1024 位，SHA1withDSA 兼容）。
// 参数生成涉及素数搜索，耗时可达数秒。
func GenerateKeyPair() (*dsa.PrivateKey, error) {
	params := new(dsa.Parameters)
	if err := dsa.GenerateParameters(params, rand.Reader, dsa.L1024N160); err != nil {
		return nil, fmt.Errorf("生成 DSA 参数失败: %w", err)
	}

	priv := new(dsa.PrivateKey)
	priv.Parameters = *params
	if err := dsa.GenerateKey(priv, rand.Reader); err != nil {
		return nil, fmt.Errorf("生成 DSA 密钥失败: %w", err)
	}
	return priv, nil
}

// ==================== 公钥编解码 ====================

// MarshalPublicKey 将公钥编码为 X.509 SubjectPublicKeyInfo（DER）。
// DSA 公钥手工编码，其余类型（RSA 等）交给标准库。
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *dsa.PublicKey:
		y, err := asn1.Marshal(k.Y)
		if err != nil {
			return nil, fmt.Errorf("编码 DSA 公钥失败: %w", err)
		}
		info := dsaPublicKeyInfo{
			Algorithm: dsaAlgorithm{
				Algorithm:  oidDSA,
				Parameters: dsaParams{P: k.P, Q: k.Q, G: k.G},
			},
			PublicKey: asn1.BitString{Bytes: y, BitLength: len(y) * 8},
		}
		der, err := asn1.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("编码 DSA 公钥失败: %w", err)
		}
		return der, nil
	default:
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("编码公钥失败: %w", err)
		}
		return der, nil
	}
}

// PublicKeyHex 返回公钥 SubjectPublicKeyInfo 的小写十六进制串，
// 即验证端所接受的公钥形式。
func PublicKeyHex(pub crypto.PublicKey) (string, error) {
	der, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(der), nil
}

// ParsePublicKeyHex 解析十六进制 SubjectPublicKeyInfo 公钥，
// 自动识别算法（DSA 或 RSA）。
func ParsePublicKeyHex(s string) (crypto.PublicKey, error) {
	der, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ==================== 私钥编解码 ====================

// MarshalPKCS8PrivateKey 将 DSA 私钥编码为 PKCS#8 PrivateKeyInfo（DER）。
func MarshalPKCS8PrivateKey(priv *dsa.PrivateKey) ([]byte, error) {
	x, err := asn1.Marshal(priv.X)
	if err != nil {
		return nil, fmt.Errorf("编码 DSA 私钥失败: %w", err)
	}
	info := dsaPrivateKeyInfo{
		Version: 0,
		Algorithm: dsaAlgorithm{
			Algorithm:  oidDSA,
			Parameters: dsaParams{P: priv.P, Q: priv.Q, G: priv.G},
		},
		PrivateKey: x,
	}
	der, err := asn1.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("编码 DSA 私钥失败: %w", err)
	}
	return der, nil
}

// PrivateKeyHex 返回私钥 PKCS#8 编码的小写十六进制串。
func PrivateKeyHex(priv *dsa.PrivateKey) (string, error) {
	der, err := MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(der), nil
}

// ParsePKCS8PrivateKey 解析 PKCS#8 DER 编码的 DSA 私钥，
// 公钥部分 y = g^x mod p 由私钥重建。
func ParsePKCS8PrivateKey(der []byte) (*dsa.PrivateKey, error) {
	var info dsaPrivateKeyInfo
	rest, err := asn1.Unmarshal(der, &info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: 编码后存在多余字节", ErrInvalidPrivateKey)
	}
	if !info.Algorithm.Algorithm.Equal(oidDSA) {
		return nil, fmt.Errorf("%w: 仅支持 DSA 私钥", ErrInvalidPrivateKey)
	}

	var x *big.Int
	if _, err := asn1.Unmarshal(info.PrivateKey, &x); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	priv := &dsa.PrivateKey{
		PublicKey: dsa.PublicKey{
			Parameters: dsa.Parameters{
				P: info.Algorithm.Parameters.P,
				Q: info.Algorithm.Parameters.Q,
				G: info.Algorithm.Parameters.G,
			},
		},
		X: x,
	}
	priv.Y = new(big.Int).Exp(priv.G, priv.X, priv.P)
	return priv, nil
}

// ParsePrivateKeyHex 解析十六进制 PKCS#8 DSA 私钥。
func ParsePrivateKeyHex(s string) (*dsa.PrivateKey, error) {
	der, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return ParsePKCS8PrivateKey(der)
}

// ==================== 签名值编解码 ====================

// EncodeSignature 将 DSA 签名 (r, s) 编码为 DER SEQUENCE。
func EncodeSignature(r, s *big.Int) ([]byte, error) {
	der, err := asn1.Marshal(dsaSignature{R: r, S: s})
	if err != nil {
		return nil, fmt.Errorf("编码签名失败: %w", err)
	}
	return der, nil
}

// ParseSignature 解析 DER SEQUENCE 编码的 DSA 签名为 (r, s)。
func ParseSignature(der []byte) (*big.Int, *big.Int, error) {
	var sig dsaSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, nil, fmt.Errorf("解析签名失败: %w", err)
	}
	if len(rest) > 0 {
		return nil, nil, errors.New("解析签名失败: 编码后存在多余字节")
	}
	return sig.R, sig.S, nil
}

// ==================== 密钥对文件 ====================

// ExportKeyPair 将密钥对写入文件，格式为两行 key=value：
// public 为十六进制 X.509 公钥，private 为十六进制 PKCS#8 私钥。
func ExportKeyPair(priv *dsa.PrivateKey, path string) error {
	pubHex, err := PublicKeyHex(&priv.PublicKey)
	if err != nil {
		return err
	}
	privHex, err := PrivateKeyHex(priv)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("public=%s\nprivate=%s\n", pubHex, privHex)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("写入密钥对文件失败: %w", err)
	}
	return nil
}

// ImportKeyPair 从 ExportKeyPair 的文件格式中恢复密钥对，
// public 与 private 两个条目缺一不可。文件中的公钥优先作为公钥部分，
// 保证导入导出往返后编码不变。
func ImportKeyPair(path string) (*dsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取密钥对文件失败: %w", err)
	}

	entries := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		entries[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}

	privHex, ok := entries["private"]
	if !ok {
		return nil, fmt.Errorf("%w: private", ErrKeyPairFile)
	}
	pubHex, ok := entries["public"]
	if !ok {
		return nil, fmt.Errorf("%w: public", ErrKeyPairFile)
	}

	priv, err := ParsePrivateKeyHex(privHex)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKeyHex(pubHex)
	if err != nil {
		return nil, err
	}
	if k, ok := pub.(*dsa.PublicKey); ok {
		priv.PublicKey = *k
	}
	return priv, nil
}
