// Package validator 实现许可证的离线校验引擎：
// 签名验证、时钟回拨修正与可扩展的检查管线。
package validator

import (
	"errors"
	"sync"
	"time"

	"license-kit/hardware"
	"license-kit/license"
	"license-kit/validator/history"
)

// ErrNilLicense 校验器要求非空许可证
var ErrNilLicense = errors.New("许可证不能为空")

// ValidationError 校验未通过。State 携带全部检查结果，调用方据此定位失败原因。
type ValidationError struct {
	State *license.LicenseState
}

func (e *ValidationError) Error() string {
	return "许可证未通过验证"
}

// Validator 许可证校验引擎。
// 插件表与吊销表采用写时复制，单次校验遍历稳定快照，期间不持有锁，
// 可被多个 goroutine 并发调用。
type Validator struct {
	lic     *license.License
	codec   codec
	expired *expiredPlugin

	stores   []history.Store
	provider hardware.Provider
	product  *ProductInfo

	mu                 sync.Mutex
	plugins            []Plugin
	blacklist          []string
	ignoreFloatTime    bool
	checkClockTurnback bool
}

// Option 配置校验器的构造。
type Option func(*Validator)

// WithProduct 启用产品与版本检查。
func WithProduct(product ProductInfo) Option {
	return func(v *Validator) {
		v.product = &product
	}
}

// WithHistory 替换浮动有效期使用的运行记录后端。
func WithHistory(stores ...history.Store) Option {
	return func(v *Validator) {
		v.stores = stores
	}
}

// WithHardwareProvider 替换硬件地址来源。
func WithHardwareProvider(provider hardware.Provider) Option {
	return func(v *Validator) {
		v.provider = provider
	}
}

// New 创建校验器。公钥为十六进制 SPKI 编码，算法自动识别。
// 默认启用时钟回拨修正，运行记录写入文件与加密两个后端。
func New(lic *license.License, publicKeyHex string, opts ...Option) (*Validator, error) {
	if lic == nil {
		return nil, ErrNilLicense
	}
	c, err := newCodec(publicKeyHex)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		lic:                lic,
		codec:              c,
		checkClockTurnback: true,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.stores == nil {
		v.stores = []history.Store{history.NewFileStore(), history.NewSealedStore()}
	}
	if v.provider == nil {
		v.provider = hardware.NewProvider()
	}

	v.expired = &expiredPlugin{stores: v.stores}
	v.plugins = []Plugin{
		v.expired,
		priorPlugin{},
		blacklistPlugin{},
		&hardwarePlugin{provider: v.provider},
	}
	if v.product != nil {
		v.plugins = append(v.plugins, &productPlugin{product: *v.product})
	}
	return v, nil
}

// ==================== 配置方法 ====================

// AddPlugin 注册自定义检查项，在内置检查之后执行。
func (v *Validator) AddPlugin(p Plugin) {
	if p == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	plugins := make([]Plugin, len(v.plugins), len(v.plugins)+1)
	copy(plugins, v.plugins)
	v.plugins = append(plugins, p)
}

// RemovePlugin 注销检查项。
func (v *Validator) RemovePlugin(p Plugin) {
	v.mu.Lock()
	defer v.mu.Unlock()

	plugins := make([]Plugin, 0, len(v.plugins))
	for _, existing := range v.plugins {
		if existing != p {
			plugins = append(plugins, existing)
		}
	}
	v.plugins = plugins
}

// AddBlacklistedLicense 吊销一个签名，携带该签名的许可证无法通过检查。
func (v *Validator) AddBlacklistedLicense(signature string) {
	if signature == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.blacklist {
		if existing == signature {
			return
		}
	}
	blacklist := make([]string, len(v.blacklist), len(v.blacklist)+1)
	copy(blacklist, v.blacklist)
	v.blacklist = append(blacklist, signature)
}

// RemoveBlacklistedLicense 撤销对一个签名的吊销。
func (v *Validator) RemoveBlacklistedLicense(signature string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	blacklist := make([]string, 0, len(v.blacklist))
	for _, existing := range v.blacklist {
		if existing != signature {
			blacklist = append(blacklist, existing)
		}
	}
	v.blacklist = blacklist
}

// SetIgnoreFloatTime 设置是否跳过浮动有效期检查。
func (v *Validator) SetIgnoreFloatTime(ignore bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ignoreFloatTime = ignore
}

// SetCheckClockTurnback 设置是否启用时钟回拨修正，默认启用。
func (v *Validator) SetCheckClockTurnback(check bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkClockTurnback = check
}

// snapshot 取插件表与校验参数的稳定快照。
// 两个切片只会整体替换，不会原地修改，快照可安全遍历。
func (v *Validator) snapshot() ([]Plugin, Params, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plugins, Params{
		IgnoreFloatTime: v.ignoreFloatTime,
		Blacklist:       v.blacklist,
	}, v.checkClockTurnback
}

// ==================== 校验 ====================

// Validate 以当前时间校验许可证。
func (v *Validator) Validate() (*license.LicenseState, error) {
	return v.ValidateAt(time.Now())
}

// ValidateAt 以指定时间校验许可证。
// 返回的 LicenseState 含全部检查结果；未通过时错误为 *ValidationError，
// 其中携带同一份状态。
func (v *Validator) ValidateAt(date time.Time) (*license.LicenseState, error) {
	plugins, params, checkClock := v.snapshot()

	// 未签名的许可证没有任何可信内容，只报告签名缺失
	if !v.lic.IsSigned() {
		state := license.NewLicenseState([]*license.TestResult{
			license.NewTestResult(license.TestSigned, false),
		})
		return state, &ValidationError{State: state}
	}
	results := []*license.TestResult{license.NewTestResult(license.TestSigned, true)}

	// 签名不匹配时许可证内容不可信，不再继续检查
	if !v.codec.verify(v.lic.CanonicalBytes(), v.lic.Signature()) {
		results = append(results, license.NewTestResult(license.TestSignature, false))
		state := license.NewLicenseState(results)
		return state, &ValidationError{State: state}
	}
	results = append(results, license.NewTestResult(license.TestSignature, true))

	if checkClock && !runningOnAppEngine() {
		date = adjustForClockTurnback(date)
	}
	params.Date = date

	for _, plugin := range plugins {
		if result := plugin.Validate(v.lic, params); result != nil {
			results = append(results, result)
		}
	}

	state := license.NewLicenseState(results)
	if !state.Valid() {
		return state, &ValidationError{State: state}
	}
	return state, nil
}

// TimeRemaining 距许可证失效的剩余时间：硬过期与浮动窗口取较小者，
// 两者都未设置时返回 nil，已失效时为负值。该查询不代表许可证有效。
func (v *Validator) TimeRemaining(at time.Time) *time.Duration {
	return v.expired.timeRemaining(v.lic, at)
}
