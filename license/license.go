package license

import (
	"encoding/hex"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 保留字段键名。自定义属性通过 propertyPrefix 与保留字段隔离。
const (
	keyCreationDate       = "creationDate"
	keyStartDate          = "startDate"
	keyExpirationDate     = "expirationDate"
	keyFloatingExpiration = "floatingExpiration"
	keyVersion            = "version"
	keySignature          = "signature"
	keyHardwareAddresses  = "hardwareAddresses"

	propertyPrefix = "property_"
)

// CurrentVersion 新建许可证的架构版本。v1 为遗留架构，不支持硬件绑定。
const CurrentVersion = 2

// ErrSigned 已签名的许可证不可修改
var ErrSigned = errors.New("许可证已签名，不可修改")

// ErrNegativePeriod 浮动有效期不能为负数
var ErrNegativePeriod = errors.New("浮动有效期不能为负数")

// ErrHardwareUnsupported v1 架构不支持硬件绑定
var ErrHardwareUnsupported = errors.New("该许可证版本不支持硬件绑定")

var nonHexPattern = regexp.MustCompile(`[^a-f0-9]`)

// License 键值对形式的许可证记录。
// 签名后记录进入不可变状态，所有修改方法返回 ErrSigned。
// 访问方法与修改方法通过单把互斥锁串行化，可在多个 goroutine 间共享。
type License struct {
	mu    sync.Mutex
	props map[string]string
}

// NewLicense 创建一张生效日期为当前时间的未签名许可证。
func NewLicense() *License {
	return NewLicenseStarting(time.Now())
}

// NewLicenseStarting 创建一张指定生效日期的未签名许可证，
// 创建日期为当前时间，架构版本为 CurrentVersion。
func NewLicenseStarting(startDate time.Time) *License {
	l := &License{props: make(map[string]string)}
	l.props[keyCreationDate] = formatMillis(time.Now())
	l.props[keyStartDate] = formatMillis(startDate)
	l.props[keyVersion] = strconv.Itoa(CurrentVersion)
	return l
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ==================== 访问方法 ====================

// CreationDate 许可证创建日期。
func (l *License) CreationDate() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dateValueLocked(keyCreationDate)
}

// StartDate 许可证生效日期。
func (l *License) StartDate() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dateValueLocked(keyStartDate)
}

// ExpirationDate 硬性过期日期，未设置时返回 nil。
func (l *License) ExpirationDate() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	str, ok := l.props[keyExpirationDate]
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

// FloatingExpirationPeriod 浮动有效期，未设置或无法解析时返回 nil。
func (l *License) FloatingExpirationPeriod() *time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	str, ok := l.props[keyFloatingExpiration]
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	d := time.Duration(ms) * time.Millisecond
	return &d
}

// LicenseVersion 许可证架构版本，缺失时视为遗留的 v1。
func (l *License) LicenseVersion() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.versionLocked()
}

// IsSigned 是否已签名。
func (l *License) IsSigned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signedLocked()
}

// SignatureString 十六进制签名串，未签名时为空串。
func (l *License) SignatureString() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.props[keySignature]
}

// Signature 签名的原始字节，未签名或无法解码时返回 nil。
func (l *License) Signature() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	str, ok := l.props[keySignature]
	if !ok {
		return nil
	}
	sig, err := hex.DecodeString(str)
	if err != nil {
		return nil
	}
	return sig
}

// Property 读取自定义属性，不存在时返回空串。
func (l *License) Property(name string) string {
	return l.PropertyOrDefault(name, "")
}

// PropertyOrDefault 读取自定义属性，不存在时返回给定默认值。
func (l *License) PropertyOrDefault(name, defaultValue string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.props[propertyPrefix+name]; ok {
		return v
	}
	return defaultValue
}

// Properties 返回全部自定义属性的副本，键为去掉命名空间前缀后的名称。
func (l *License) Properties() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	properties := make(map[string]string)
	for k, v := range l.props {
		if strings.HasPrefix(k, propertyPrefix) {
			properties[strings.TrimPrefix(k, propertyPrefix)] = v
		}
	}
	return properties
}

// HardwareAddresses 返回绑定的硬件地址集合，按字典序排列。
func (l *License) HardwareAddresses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return splitHardwareAddresses(l.props[keyHardwareAddresses])
}

// RawProperties 返回底层键值对的完整副本，含保留字段与签名。
func (l *License) RawProperties() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	copied := make(map[string]string, len(l.props))
	for k, v := range l.props {
		copied[k] = v
	}
	return copied
}

// CanonicalBytes 返回签名与验证所用的规范字节序列：
// 键按字典序升序排列，跳过 signature 字段，键值直接拼接、无分隔符。
// 内容相同的两张许可证无论写入顺序如何，规范序列必定一致。
func (l *License) CanonicalBytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canonicalLocked()
}

// ==================== 修改方法 ====================

// SetStartDate 设置生效日期。
func (l *License) SetStartDate(startDate time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	l.props[keyStartDate] = formatMillis(startDate)
	return nil
}

// SetExpirationDate 设置硬性过期日期。
func (l *License) SetExpirationDate(expirationDate time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	l.props[keyExpirationDate] = formatMillis(expirationDate)
	return nil
}

// ClearExpirationDate 移除硬性过期日期，许可证转为永久有效。
func (l *License) ClearExpirationDate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	delete(l.props, keyExpirationDate)
	return nil
}

// SetFloatingExpirationPeriod 设置自首次使用起算的浮动有效期。
func (l *License) SetFloatingExpirationPeriod(period time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	if period < 0 {
		return ErrNegativePeriod
	}
	l.props[keyFloatingExpiration] = strconv.FormatInt(period.Milliseconds(), 10)
	return nil
}

// ClearFloatingExpirationPeriod 移除浮动有效期。
func (l *License) ClearFloatingExpirationPeriod() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	delete(l.props, keyFloatingExpiration)
	return nil
}

// SetProperty 写入自定义属性。
func (l *License) SetProperty(name, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	l.props[propertyPrefix+name] = value
	return nil
}

// RemoveProperty 移除自定义属性。
func (l *License) RemoveProperty(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	delete(l.props, propertyPrefix+name)
	return nil
}

// AddHardwareAddress 绑定一个硬件地址。地址会被归一化为小写十六进制，
// 重复绑定会被忽略。仅 v2 及以上架构支持。
func (l *License) AddHardwareAddress(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}
	if l.versionLocked() < 2 {
		return ErrHardwareUnsupported
	}

	addr := normalizeHardwareAddress(address)
	addresses := l.props[keyHardwareAddresses]
	if !strings.Contains(addresses, addr) {
		addresses = addresses + " " + addr
	}
	l.props[keyHardwareAddresses] = strings.TrimSpace(addresses)
	return nil
}

// RemoveHardwareAddress 解除一个硬件地址的绑定。
func (l *License) RemoveHardwareAddress(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signedLocked() {
		return ErrSigned
	}

	addr := normalizeHardwareAddress(address)
	var kept []string
	for _, a := range splitHardwareAddresses(l.props[keyHardwareAddresses]) {
		if a != addr {
			kept = append(kept, a)
		}
	}
	l.props[keyHardwareAddresses] = strings.Join(kept, " ")
	return nil
}

// ==================== 复制与比较 ====================

// Clone 返回一份未签名副本：签名被剥离，创建日期重置为当前时间，
// 其余字段原样复制。
func (l *License) Clone() *License {
	props := l.RawProperties()
	delete(props, keySignature)
	props[keyCreationDate] = formatMillis(time.Now())
	return &License{props: props}
}

// Equal 按底层键值对逐项比较两张许可证。
func (l *License) Equal(other *License) bool {
	if l == other {
		return true
	}
	if other == nil {
		return false
	}

	mine := l.RawProperties()
	theirs := other.RawProperties()
	if len(mine) != len(theirs) {
		return false
	}
	for k, v := range mine {
		if theirs[k] != v {
			return false
		}
	}
	return true
}

// ==================== 内部方法（调用方需持锁） ====================

func (l *License) signedLocked() bool {
	_, ok := l.props[keySignature]
	return ok
}

func (l *License) versionLocked() int {
	str, ok := l.props[keyVersion]
	if !ok {
		return 1
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return 1
	}
	return v
}

func (l *License) dateValueLocked(key string) time.Time {
	ms, err := strconv.ParseInt(l.props[key], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (l *License) canonicalLocked() []byte {
	keys := make([]string, 0, len(l.props))
	for k := range l.props {
		if k != keySignature {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(l.props[k])
	}
	return []byte(b.String())
}

func normalizeHardwareAddress(address string) string {
	return nonHexPattern.ReplaceAllString(strings.ToLower(address), "")
}

func splitHardwareAddresses(addresses string) []string {
	result := strings.Fields(addresses)
	sort.Strings(result)
	return result
}
