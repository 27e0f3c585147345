// Package license 定义许可证数据模型：键值对记录、规范字节序列、
// 检查项与验证结果，以及签名器。
//
// 许可证一经签名便不可再修改，验证方据此保证记录未被篡改。
package license

// LicenseTest 一项验证检查的静态标识与结果文案。
// 两个检查项只要 ID 相同即视为同一项，其余字段仅用于展示。
type LicenseTest struct {
	ID            string
	Name          string
	PassedMessage string
	FailedMessage string
}

// 内置检查项。签名相关的两项由验证引擎直接执行，
// 其余由对应的内置插件产出。
var (
	TestSigned = &LicenseTest{
		ID:            "licensekit.signed",
		Name:          "Signed Test",
		PassedMessage: "The license is signed.",
		FailedMessage: "The license is not signed.",
	}

	TestSignature = &LicenseTest{
		ID:            "licensekit.signature",
		Name:          "Signature Test",
		PassedMessage: "The license signature has been verified",
		FailedMessage: "The license signature can't be verified",
	}

	TestPrior = &LicenseTest{
		ID:            "licensekit.prior",
		Name:          "Prior Test",
		PassedMessage: "The current date is after the license start date",
		FailedMessage: "The current date is prior to the license start date",
	}

	TestExpired = &LicenseTest{
		ID:            "licensekit.expired",
		Name:          "Expired Test",
		PassedMessage: "The current date is before the license expiration date",
		FailedMessage: "The current date is after the license expiration date",
	}

	TestBlacklist = &LicenseTest{
		ID:            "licensekit.blacklist",
		Name:          "Blacklist Test",
		PassedMessage: "The license is not blacklisted",
		FailedMessage: "The license has been blacklisted",
	}

	TestHardware = &LicenseTest{
		ID:            "licensekit.hardware",
		Name:          "Hardware Test",
		PassedMessage: "The license is valid for this hardware",
		FailedMessage: "The license is not valid for this hardware",
	}
)

// NewLicenseTest 创建自定义检查项，供外部插件使用。
func NewLicenseTest(id, name, passedMessage, failedMessage string) *LicenseTest {
	return &LicenseTest{
		ID:            id,
		Name:          name,
		PassedMessage: passedMessage,
		FailedMessage: failedMessage,
	}
}

// Equal 仅按 ID 判断两个检查项是否为同一项。
func (t *LicenseTest) Equal(other *LicenseTest) bool {
	return other != nil && t.ID == other.ID
}

func (t *LicenseTest) String() string {
	return t.Name
}

// TestResult 单项检查的不可变结果。
type TestResult struct {
	test   *LicenseTest
	passed bool
}

// NewTestResult 创建检查结果。test 为 nil 属于编程错误，直接 panic。
func NewTestResult(test *LicenseTest, passed bool) *TestResult {
	if test == nil {
		panic("license: 检查项不能为空")
	}
	return &TestResult{test: test, passed: passed}
}

// Test 返回结果对应的检查项。
func (r *TestResult) Test() *LicenseTest {
	return r.test
}

// Passed 返回该项检查是否通过。
func (r *TestResult) Passed() bool {
	return r.passed
}

// Description 返回与通过状态对应的结果文案。
func (r *TestResult) Description() string {
	if r.passed {
		return r.test.PassedMessage
	}
	return r.test.FailedMessage
}

// LicenseState 一次验证运行的全部结果，顺序与执行顺序一致。
type LicenseState struct {
	results []*TestResult
}

// NewLicenseState 由结果列表构造验证状态，列表会被复制。
func NewLicenseState(results []*TestResult) *LicenseState {
	copied := make([]*TestResult, len(results))
	copy(copied, results)
	return &LicenseState{results: copied}
}

// Valid 所有检查项都通过时为 true。
func (s *LicenseState) Valid() bool {
	for _, r := range s.results {
		if !r.passed {
			return false
		}
	}
	return true
}

// Results 返回全部结果的副本。
func (s *LicenseState) Results() []*TestResult {
	copied := make([]*TestResult, len(s.results))
	copy(copied, s.results)
	return copied
}

// PassedTests 返回通过的结果子集，保持原有顺序。
func (s *LicenseState) PassedTests() []*TestResult {
	var passed []*TestResult
	for _, r := range s.results {
		if r.passed {
			passed = append(passed, r)
		}
	}
	return passed
}

// FailedTests 返回未通过的结果子集，保持原有顺序。
func (s *LicenseState) FailedTests() []*TestResult {
	var failed []*TestResult
	for _, r := range s.results {
		if !r.passed {
			failed = append(failed, r)
		}
	}
	return failed
}
