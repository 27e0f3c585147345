// Package entitlement 负责 LicenseKit 自身授权的引导：
// 从可执行文件同目录加载 LicenseKit.lic，用内置的厂商公钥跑完整
// 验证管线（含产品与版本检查），并据结论决定签名器是否进入演示模式。
//
// 加载或验证失败不报错，而是落入无效状态，各访问器返回零值。
package entitlement

import (
	"crypto/dsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"license-kit/license"
	"license-kit/validator"
)

// ==================== 产品标识 ====================

// 当前运行产品的固定标识。
const (
	productCodename    = "licensekit"
	productName        = "LicenseKit"
	productDisplayName = "LicenseKit License Manager"

	majorVersion = 2
	minorVersion = 2
	pointVersion = 0

	// buildDateMillis 当前构建的发布时间（epoch 毫秒）
	buildDateMillis = 1303218429081
)

// entitlementFile 自身授权文件名，放在可执行文件同目录。
const entitlementFile = "LicenseKit.lic"

// Product 返回运行中产品的标识，供产品与版本检查使用。
func Product() validator.ProductInfo {
	return validator.ProductInfo{
		Codename:     productCodename,
		Name:         productName,
		DisplayName:  productDisplayName,
		MajorVersion: majorVersion,
		BuildDate:    time.UnixMilli(buildDateMillis),
	}
}

// Version 返回核心库版本号，如 "2.2.0"。
func Version() string {
	return fmt.Sprintf("%d.%d.%d", majorVersion, minorVersion, pointVersion)
}

// BuildDate 返回当前构建的发布时间。
func BuildDate() time.Time {
	return time.UnixMilli(buildDateMillis)
}

// ==================== 厂商公钥 ====================

// 厂商公钥（hex 编码的 SPKI）。v1 为旧版 RSA 架构签发的授权使用，
// v2 为当前 DSA 架构使用。
const (
	pubKeyV1 = "30820122300d06092a864886f70d01010105000382010f003082010a02820101" +
		"00abc3c8885e8f316b8bf85237c19c62d5f8de599047244432ec39c593e3d8a7" +
		"d02b0c08d9022b0eae4fd126e9323ce7805a998abf0ced9dfadc70f6a86d536f" +
		"eb1e949354730db47d232cde879ffd57af8ade19be70d3d91823847727945551" +
		"e7a46951a71bc63e821260806b292bcfa433273a2fcf2e4274238314f8735ab6" +
		"50085a08caeb138e5a6f3aa08dbcc55ab38a458d0008b617ffe262469554c634" +
		"15e744d5faecb44e3fcdbb63122940bf87f428de3214ab178dbefe50e8fe83dd" +
		"b90c8d49b2d4f51cdeb72b954a9884a1f5c1b39e76c6b1964b0edc3221f403d4" +
		"cca3f2f1e1b2a3a73fda0a7e8cc20cac3a667a42d70c2563f5816e51d14ab765" +
		"0d0203010001"

	pubKeyV2 = "308201b73082012c06072a8648ce3804013082011f02818100fd7f53811d7512" +
		"2952df4a9c2eece4e7f611b7523cef4400c31e3f80b6512669455d402251fb59" +
		"3d8d58fabfc5f5ba30f6cb9b556cd7813b801d346ff26660b76b9950a5a49f9f" +
		"e8047b1022c24fbba9d7feb7c61bf83b57e7c6a8a6150f04fb83f6d3c51ec302" +
		"3554135a169132f675f3ae2b61d72aeff22203199dd14801c70215009760508f" +
		"15230bccb292b982a2eb840bf0581cf502818100f7e1a085d69b3ddecbbcab5c" +
		"36b857b97994afbbfa3aea82f9574c0b3d0782675159578ebad4594fe6710710" +
		"8180b449167123e84c281613b7cf09328cc8a6e13c167a8b547c8d28e0a3ae1e" +
		"2bb3a675916ea37f0bfa213562f1fb627a01243bcca4f1bea8519089a883dfe1" +
		"5ae59f06928b665e807b552564014c3bfecf492a038184000281801324955992" +
		"c6d648cc750935dfc867e2c59eba301ab21f35ca372d476abeac1acd67fc1500" +
		"18df9792b5fd9a3486fe164bae04a83758f0bd01706f4499de7031fab6ff2c14" +
		"497f48bcc25e99750849db348b3b79de96f91f93869ac36e7afc573d9ea5ce86" +
		"4872972eb6830858ff6bc2510cb9fc4de3f2943fa25b91a3b80799"
)

// ==================== 授权状态 ====================

// State 自身授权的验证结论，构造后不可变。
type State struct {
	lic         *license.License
	licenseFile string
	valid       bool
	description string
}

// Load 从可执行文件同目录加载 LicenseKit.lic 并验证。
func Load() *State {
	exe, err := os.Executable()
	if err != nil {
		return &State{description: "Cannot determine the LicenseKit folder. Please contact LicenseKit support."}
	}
	return LoadFile(filepath.Join(filepath.Dir(exe), entitlementFile))
}

// LoadFile 从指定路径加载自身授权并验证。
func LoadFile(path string) *State {
	lic, err := license.ImportFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return &State{description: "No LicenseKit license file found."}
		}
		return &State{description: "Cannot import LicenseKit.lic"}
	}

	s := evaluate(lic, keyFor(lic))
	s.licenseFile = path
	return s
}

// NewState 直接对给定的授权许可证求值，不读取文件。
func NewState(lic *license.License) *State {
	if lic == nil {
		return &State{description: "No LicenseKit license file found."}
	}
	return evaluate(lic, keyFor(lic))
}

// keyFor 按许可证版本选择验证公钥：v1 用旧版 RSA 钥，其余用 DSA 钥。
func keyFor(lic *license.License) string {
	if lic.LicenseVersion() == 1 {
		return pubKeyV1
	}
	return pubKeyV2
}

// evaluate 运行完整验证管线并固化结论。
func evaluate(lic *license.License, publicKeyHex string) *State {
	s := &State{lic: lic}

	v, err := validator.New(lic, publicKeyHex, validator.WithProduct(Product()))
	if err != nil {
		s.description = "Cannot validate the LicenseKit license"
		return s
	}

	// 未通过时返回的状态携带同一份检查结果，错误本身不再需要
	state, _ := v.Validate()
	s.valid = state.Valid()
	if s.valid {
		s.description = "LicenseKit license is valid and current"
	} else {
		s.description = state.FailedTests()[0].Description()
	}
	return s
}

// Valid 返回自身授权是否通过验证。
func (s *State) Valid() bool {
	return s.valid
}

// Description 返回结论的文字描述：有效时为固定文案，
// 无效时为第一条未通过检查的说明。
func (s *State) Description() string {
	return s.description
}

// License 返回加载到的授权许可证，加载失败时为 nil。
func (s *State) License() *license.License {
	return s.lic
}

// LicenseFile 返回授权文件路径，非文件来源时为空。
func (s *State) LicenseFile() string {
	return s.licenseFile
}

// Name 返回被授权人名称。
func (s *State) Name() string {
	return s.schemaProperty("Name", "name")
}

// Company 返回被授权公司。
func (s *State) Company() string {
	return s.schemaProperty("Company", "company")
}

// Email 返回被授权人邮箱。
func (s *State) Email() string {
	return s.schemaProperty("Email", "email")
}

// SupportLength 返回购买的支持期年数，缺失或无法解析时为 0。
func (s *State) SupportLength() int {
	n, err := strconv.Atoi(s.schemaProperty("supportLength", "product_"+productCodename+"_supportLength"))
	if err != nil {
		return 0
	}
	return n
}

// MajorVersion 返回授权的主版本号，无法解析时按当前主版本处理。
func (s *State) MajorVersion() int {
	if s.lic == nil {
		return 0
	}
	n, err := strconv.Atoi(s.schemaProperty("majorVersion", "product_"+productCodename+"_majorVersion"))
	if err != nil {
		return majorVersion
	}
	return n
}

// schemaProperty 按许可证版本选择属性键：v1 旧架构用大写键名，
// 当前架构用小写或带产品前缀的键名。
func (s *State) schemaProperty(v1Key, currentKey string) string {
	if s.lic == nil {
		return ""
	}
	if s.lic.LicenseVersion() == 1 {
		return s.lic.Property(v1Key)
	}
	return s.lic.Property(currentKey)
}

// ==================== 签名器接线 ====================

// NewSigner 基于该授权状态创建签名器，授权无效时进入演示模式。
func (s *State) NewSigner(privateKey *dsa.PrivateKey) (*license.Signer, error) {
	return license.NewSigner(privateKey, license.WithDemoMode(!s.valid))
}

// NewSigner 创建感知自身授权的签名器：引导一次 Load 并按其结论接线。
func NewSigner(privateKey *dsa.PrivateKey) (*license.Signer, error) {
	return Load().NewSigner(privateKey)
}
