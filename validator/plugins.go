package validator

import (
	"fmt"
	"strconv"
	"time"

	"license-kit/hardware"
	"license-kit/license"
	"license-kit/validator/history"
)

// Params 单次校验的不可变输入。
type Params struct {
	// Date 校验生效时间，可能已被时钟回拨修正。
	Date time.Time

	// IgnoreFloatTime 跳过浮动有效期检查。
	IgnoreFloatTime bool

	// Blacklist 被吊销的签名集合快照。
	Blacklist []string
}

// Plugin 校验管线中的一项检查。
// 内置检查之外，调用方可注册自定义实现。
type Plugin interface {
	// Validate 对许可证执行检查，返回 nil 表示本次不适用。
	Validate(lic *license.License, params Params) *license.TestResult
}

// ==================== 过期检查 ====================

// expiredPlugin 检查硬过期时间与浮动有效期。
type expiredPlugin struct {
	stores []history.Store
}

func (p *expiredPlugin) Validate(lic *license.License, params Params) *license.TestResult {
	if exp := lic.ExpirationDate(); exp != nil && params.Date.After(*exp) {
		return license.NewTestResult(license.TestExpired, false)
	}

	period := lic.FloatingExpirationPeriod()
	if params.IgnoreFloatTime || period == nil {
		return license.NewTestResult(license.TestExpired, true)
	}

	// 首次运行时间取当前时间与全部后端记录的最小值并回写，
	// 清除单个后端无法重置浮动窗口。
	signature := lic.SignatureString()
	firstRun := history.Earliest(p.stores, signature, params.Date)
	history.Record(p.stores, signature, firstRun)
	return license.NewTestResult(license.TestExpired, !params.Date.After(firstRun.Add(*period)))
}

// timeRemaining 距离失效的剩余时间，硬过期与浮动窗口取较小者。
// 两者都未设置时返回 nil，已失效时为负值。
func (p *expiredPlugin) timeRemaining(lic *license.License, at time.Time) *time.Duration {
	var remaining *time.Duration

	if period := lic.FloatingExpirationPeriod(); period != nil {
		signature := lic.SignatureString()
		firstRun := history.Earliest(p.stores, signature, at)
		history.Record(p.stores, signature, firstRun)
		d := firstRun.Add(*period).Sub(at)
		remaining = &d
	}
	if exp := lic.ExpirationDate(); exp != nil {
		d := exp.Sub(at)
		if remaining == nil || d < *remaining {
			remaining = &d
		}
	}
	return remaining
}

// ==================== 生效日期检查 ====================

// priorPlugin 检查生效日期是否已经到达，恰好等于生效时间时通过。
type priorPlugin struct{}

func (priorPlugin) Validate(lic *license.License, params Params) *license.TestResult {
	return license.NewTestResult(license.TestPrior, !params.Date.Before(lic.StartDate()))
}

// ==================== 吊销检查 ====================

// blacklistPlugin 检查签名是否在吊销名单中。
type blacklistPlugin struct{}

func (blacklistPlugin) Validate(lic *license.License, params Params) *license.TestResult {
	signature := lic.SignatureString()
	for _, revoked := range params.Blacklist {
		if revoked == signature {
			return license.NewTestResult(license.TestBlacklist, false)
		}
	}
	return license.NewTestResult(license.TestBlacklist, true)
}

// ==================== 硬件绑定检查 ====================

// hardwarePlugin 检查许可证绑定的硬件地址是否与本机匹配。
// 未绑定任何地址的许可证不受硬件限制。
type hardwarePlugin struct {
	provider hardware.Provider
}

func (p *hardwarePlugin) Validate(lic *license.License, params Params) *license.TestResult {
	declared := lic.HardwareAddresses()
	if len(declared) == 0 {
		return license.NewTestResult(license.TestHardware, true)
	}

	system := p.provider.SystemMACAddresses()
	for _, addr := range declared {
		for _, have := range system {
			if addr == have {
				return license.NewTestResult(license.TestHardware, true)
			}
		}
	}
	return license.NewTestResult(license.TestHardware, false)
}

// ==================== 产品与版本检查 ====================

// 旧版架构的产品属性键名。
const (
	legacyProductNameKey  = "Product"
	legacySupportKey      = "supportLength"
	legacyMajorVersionKey = "majorVersion"
)

// supportYear 支持期按一年 365.25 天折算。
const supportYear = 365*24*time.Hour + 6*time.Hour

// ProductInfo 运行中产品的标识，供产品与版本检查使用。
type ProductInfo struct {
	// Codename 属性键命名空间与检查项 ID 使用的代号。
	Codename string
	// Name 消息文案使用的短名。
	Name string
	// DisplayName 许可证产品属性必须匹配的完整名称。
	DisplayName string
	// MajorVersion 当前产品的主版本号。
	MajorVersion int
	// BuildDate 当前构建的发布时间，用于支持期判定。
	BuildDate time.Time
}

// productPlugin 检查许可证授权的产品与版本是否覆盖当前运行的产品：
// 产品名必须匹配，且主版本号一致或构建时间仍在购买的支持期内。
// 属性缺失或无法解析一律判为不通过。
type productPlugin struct {
	product ProductInfo
}

func (p *productPlugin) Validate(lic *license.License, params Params) *license.TestResult {
	passed := true
	failureReason := fmt.Sprintf("The supplied license is not valid for this version of %s", p.product.Name)

	if !p.productNameMatches(lic) {
		failureReason = fmt.Sprintf("The supplied license is not for the %s", p.product.DisplayName)
		passed = false
	} else if versionOK, err := p.majorVersionMatches(lic); err != nil {
		passed = false
	} else if !versionOK {
		supportOK, err := p.underSupportContract(lic)
		if err != nil || !supportOK {
			passed = false
		}
	}

	test := license.NewLicenseTest(
		p.product.Codename+".product",
		fmt.Sprintf("%s License Test", p.product.Name),
		fmt.Sprintf("The %s license is valid for this version", p.product.Name),
		failureReason,
	)
	return license.NewTestResult(test, passed)
}

func (p *productPlugin) productNameMatches(lic *license.License) bool {
	name := lic.Property("product_" + p.product.Codename)
	if name == "" {
		name = lic.Property(legacyProductNameKey)
	}
	return name == p.product.DisplayName
}

func (p *productPlugin) majorVersionMatches(lic *license.License) (bool, error) {
	value := lic.Property("product_" + p.product.Codename + "_majorVersion")
	if value == "" {
		value = lic.Property(legacyMajorVersionKey)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return false, err
	}
	return version == p.product.MajorVersion, nil
}

func (p *productPlugin) underSupportContract(lic *license.License) (bool, error) {
	value := lic.Property("product_" + p.product.Codename + "_supportLength")
	if value == "" {
		value = lic.Property(legacySupportKey)
	}
	years, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, err
	}
	supportEnd := lic.StartDate().Add(time.Duration(years) * supportYear)
	return p.product.BuildDate.Before(supportEnd), nil
}
