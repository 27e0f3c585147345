// Package hardware 跨平台枚举本机网卡物理地址，供硬件绑定检查使用。
//
// 地址来源有两个：运行时的接口枚举与平台命令输出扫描，
// 结果统一为去除分隔符的 12 位小写十六进制字符串。
// 所有探测失败均静默降级，最坏情况下返回空集合。
package hardware

import (
	"encoding/hex"
	"net"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// Provider 本机硬件地址的来源。
type Provider interface {
	// SystemMACAddresses 返回去重后的本机物理地址集合，按字典序排列。
	// 探测尽力而为，永不失败。
	SystemMACAddresses() []string
}

// macPattern 匹配命令输出中形如 aa:bb:cc:dd:ee:ff 或 aa-bb 分隔的地址。
var macPattern = regexp.MustCompile(`(?i)[0-9a-f]{2}([:-][0-9a-f]{2}){5}`)

// DefaultProvider 组合接口枚举与平台命令两种来源的地址提供者。
// 虚拟网卡前缀表与平台命令在构造时注入，构造后不可变。
type DefaultProvider struct {
	virtualPrefixes []string
	command         []string
	permitVirtual   bool
}

// Option 配置 DefaultProvider。
type Option func(*DefaultProvider)

// WithPermitVirtualAddresses 允许结果中保留虚拟网卡地址。
func WithPermitVirtualAddresses(permit bool) Option {
	return func(p *DefaultProvider) {
		p.permitVirtual = permit
	}
}

// WithVirtualPrefixes 替换虚拟网卡前缀表（去除分隔符的小写十六进制）。
func WithVirtualPrefixes(prefixes []string) Option {
	return func(p *DefaultProvider) {
		p.virtualPrefixes = append([]string(nil), prefixes...)
	}
}

// WithPlatformCommand 替换扫描用的平台命令，传空则跳过命令来源。
func WithPlatformCommand(argv ...string) Option {
	return func(p *DefaultProvider) {
		p.command = append([]string(nil), argv...)
	}
}

// NewProvider 创建使用当前平台默认配置的地址提供者。
func NewProvider(opts ...Option) *DefaultProvider {
	p := &DefaultProvider{
		virtualPrefixes: defaultVirtualPrefixes(),
		command:         platformCommand(runtime.GOOS),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// defaultVirtualPrefixes 已知虚拟网卡的 OUI 前缀。
func defaultVirtualPrefixes() []string {
	return []string{
		"005056",       // VMware 宿主机
		"000c29",       // VMware 虚拟机
		"080027",       // VirtualBox 虚拟机
		"0a0027000000", // VirtualBox 宿主机
		"001c42",       // Parallels
		"00163e",       // Xen
	}
}

// platformCommand 各平台的地址扫描命令，未知平台返回空。
func platformCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"ipconfig", "/all"}
	case "linux":
		return []string{"/sbin/ifconfig"}
	case "darwin":
		return []string{"ifconfig"}
	case "solaris", "illumos":
		return []string{"/usr/sbin/arp", localHostAddress()}
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		return []string{"ifconfig"}
	default:
		return nil
	}
}

func localHostAddress() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	return addrs[0]
}

// SystemMACAddresses 合并两种来源并过滤虚拟网卡地址。
func (p *DefaultProvider) SystemMACAddresses() []string {
	seen := make(map[string]struct{})
	for _, addr := range p.nativeAddresses() {
		seen[addr] = struct{}{}
	}
	for _, addr := range p.commandAddresses() {
		seen[addr] = struct{}{}
	}

	addresses := make([]string, 0, len(seen))
	for addr := range seen {
		if !p.permitVirtual && p.isVirtual(addr) {
			continue
		}
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	return addresses
}

// nativeAddresses 枚举运行时可见的接口，剔除组播/广播位地址。
func (p *DefaultProvider) nativeAddresses() []string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var addresses []string
	for _, iface := range interfaces {
		hw := iface.HardwareAddr
		if len(hw) != 6 || hw[0]&0x01 != 0 {
			continue
		}
		addresses = append(addresses, hex.EncodeToString(hw))
	}
	return addresses
}

// commandAddresses 运行平台命令并从输出中扫描地址形状的片段。
func (p *DefaultProvider) commandAddresses() []string {
	if len(p.command) == 0 {
		return nil
	}
	output, err := exec.Command(p.command[0], p.command[1:]...).Output()
	if err != nil {
		return nil
	}
	var addresses []string
	for _, token := range macPattern.FindAllString(string(output), -1) {
		if addr, ok := normalizeToken(token); ok {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

// normalizeToken 去除分隔符并统一为小写，不足 12 位时左补零。
func normalizeToken(token string) (string, bool) {
	addr := strings.ToLower(token)
	addr = strings.ReplaceAll(addr, ":", "")
	addr = strings.ReplaceAll(addr, "-", "")
	if len(addr) == 11 {
		addr = "0" + addr
	}
	if len(addr) != 12 {
		return "", false
	}
	return addr, true
}

func (p *DefaultProvider) isVirtual(addr string) bool {
	for _, prefix := range p.virtualPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}
