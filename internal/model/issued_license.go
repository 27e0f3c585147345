package model

import (
	"strings"
	"time"

	"license-kit/license"
	"license-kit/validator/history"
)

// IssuedLicense 签发台账：每成功签发一份许可证追加一条记录。
type IssuedLicense struct {
	BaseModel
	CustomerName    string     `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerCompany string     `gorm:"type:varchar(255)" json:"customer_company"`
	CustomerEmail   string     `gorm:"type:varchar(255);index" json:"customer_email"`
	Signature       string     `gorm:"type:varchar(512);uniqueIndex;not null" json:"signature"`
	Fingerprint     string     `gorm:"type:varchar(63);index" json:"fingerprint"` // 签名前缀，与运行历史对应
	Demo            bool       `json:"demo"`                                      // 以演示模式签发
	StartDate       time.Time  `json:"start_date"`
	ExpirationDate  *time.Time `json:"expire_at"`
	FloatingMillis  *int64     `json:"floating_millis"`                      // 浮动有效期（毫秒）
	HardwareBound   string     `gorm:"type:text" json:"hardware_bound"`      // 绑定的硬件地址，空格分隔
	LicenseText     string     `gorm:"type:text" json:"-"`                   // 完整许可证文本，供补发
}

func (IssuedLicense) TableName() string {
	return "issued_licenses"
}

// NewIssuedLicense 由签发完成的许可证构造台账记录。
func NewIssuedLicense(l *license.License, demo bool) *IssuedLicense {
	r := &IssuedLicense{
		CustomerName:    l.Property("name"),
		CustomerCompany: l.Property("company"),
		CustomerEmail:   l.Property("email"),
		Signature:       l.SignatureString(),
		Fingerprint:     history.Fingerprint(l.SignatureString()),
		Demo:            demo,
		StartDate:       l.StartDate(),
		ExpirationDate:  l.ExpirationDate(),
		HardwareBound:   strings.Join(l.HardwareAddresses(), " "),
		LicenseText:     license.ExportString(l),
	}
	if p := l.FloatingExpirationPeriod(); p != nil {
		millis := p.Milliseconds()
		r.FloatingMillis = &millis
	}
	return r
}

// Expired 判断记录的硬过期时间是否已过。
func (r *IssuedLicense) Expired() bool {
	return r.ExpirationDate != nil && time.Now().After(*r.ExpirationDate)
}

// FloatingPeriod 返回浮动有效期，未设置时为 nil。
func (r *IssuedLicense) FloatingPeriod() *time.Duration {
	if r.FloatingMillis == nil {
		return nil
	}
	d := time.Duration(*r.FloatingMillis) * time.Millisecond
	return &d
}
