package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"license-kit/entitlement"
	"license-kit/hardware"
	"license-kit/internal/config"
	"license-kit/internal/model"
	"license-kit/keys"
	"license-kit/license"
	"license-kit/validator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "keygen":
		runKeygen(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "hwinfo":
		runHwinfo(os.Args[2:])
	case "version":
		runVersion()
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `LicenseKit 许可证管理工具

用法: licensekit <命令> [选项]

命令:
  keygen    生成 DSA 密钥对
  sign      构建并签发许可证
  validate  验证许可证文件
  inspect   查看许可证内容
  hwinfo    显示本机硬件地址
  version   显示版本与自身授权状态

每个命令支持 -h 查看选项。
`)
}

// loadConfig 加载配置文件，未指定时使用默认配置。
func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

// setupLog 配置了日志文件时重定向日志输出。
func setupLog(cfg *config.Config) {
	if cfg.Log.File == "" {
		return
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("打开日志文件失败: %v", err)
	}
	log.SetOutput(f)
}

// entitlementState 按配置加载自身授权，未配置路径时在可执行文件同目录查找。
func entitlementState(cfg *config.Config) *entitlement.State {
	if cfg.Entitlement.File != "" {
		return entitlement.LoadFile(cfg.Entitlement.File)
	}
	return entitlement.Load()
}

// listFlag 可重复的命令行参数
type listFlag []string

func (f *listFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *listFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// parseDate 解析日期参数，接受 RFC3339、YYYY-MM-DD 或毫秒时间戳。
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(millis), nil
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %s", s)
}

func runKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	out := fs.String("out", "", "密钥对输出文件，默认取配置中的 keys.file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLog(cfg)

	path := *out
	if path == "" {
		path = cfg.Keys.File
	}

	log.Println("生成 DSA 密钥对...")
	key, err := keys.GenerateKeyPair()
	if err != nil {
		log.Fatalf("生成密钥对失败: %v", err)
	}
	if err := keys.ExportKeyPair(key, path); err != nil {
		log.Fatalf("导出密钥对失败: %v", err)
	}
	log.Printf("密钥对已写入 %s", path)

	publicHex, err := keys.PublicKeyHex(&key.PublicKey)
	if err != nil {
		log.Fatalf("编码公钥失败: %v", err)
	}
	fmt.Println(publicHex)
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	keysFile := fs.String("keys", "", "密钥对文件，默认取配置中的 keys.file")
	in := fs.String("in", "", "待签发的未签名许可证文件，留空时新建")
	out := fs.String("out", "license.lic", "签发后的许可证输出文件")
	name := fs.String("name", "", "客户名称")
	company := fs.String("company", "", "客户公司")
	email := fs.String("email", "", "客户邮箱")
	start := fs.String("start", "", "生效日期")
	expires := fs.String("expires", "", "硬过期日期，留空为不过期")
	float := fs.Duration("float", 0, "首次运行起算的浮动有效期，如 720h")
	var hwAddrs listFlag
	fs.Var(&hwAddrs, "hw", "绑定的硬件地址，可重复")
	var props listFlag
	fs.Var(&props, "prop", "附加属性 key=value，可重复")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLog(cfg)

	// 自身授权决定是否进入演示模式
	ent := entitlementState(cfg)
	log.Printf("自身授权状态: %s", ent.Description())
	if !ent.Valid() {
		log.Println("[WARNING] 自身授权无效，将以演示模式签发（有效期 14 天）")
	}

	keyPath := *keysFile
	if keyPath == "" {
		keyPath = cfg.Keys.File
	}
	priv, err := keys.ImportKeyPair(keyPath)
	if err != nil {
		log.Fatalf("加载密钥对失败: %v", err)
	}

	var lic *license.License
	if *in != "" {
		lic, err = license.ImportFile(*in)
		if err != nil {
			log.Fatalf("加载许可证失败: %v", err)
		}
	} else {
		lic = license.NewLicense()
	}

	if *start != "" {
		t, err := parseDate(*start)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := lic.SetStartDate(t); err != nil {
			log.Fatalf("设置生效日期失败: %v", err)
		}
	}
	if *expires != "" {
		t, err := parseDate(*expires)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := lic.SetExpirationDate(t); err != nil {
			log.Fatalf("设置过期日期失败: %v", err)
		}
	}
	if *float > 0 {
		if err := lic.SetFloatingExpirationPeriod(*float); err != nil {
			log.Fatalf("设置浮动有效期失败: %v", err)
		}
	}

	customer := map[string]string{"name": *name, "company": *company, "email": *email}
	for k, v := range customer {
		if v == "" {
			continue
		}
		if err := lic.SetProperty(k, v); err != nil {
			log.Fatalf("设置属性 %s 失败: %v", k, err)
		}
	}
	for _, p := range props {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			log.Fatalf("属性格式应为 key=value: %s", p)
		}
		if err := lic.SetProperty(k, v); err != nil {
			log.Fatalf("设置属性 %s 失败: %v", k, err)
		}
	}
	for _, addr := range hwAddrs {
		if err := lic.AddHardwareAddress(addr); err != nil {
			log.Fatalf("添加硬件地址失败: %v", err)
		}
	}

	signer, err := ent.NewSigner(priv)
	if err != nil {
		log.Fatalf("创建签名器失败: %v", err)
	}
	if err := signer.Sign(lic); err != nil {
		log.Fatalf("签名失败: %v", err)
	}
	if err := license.ExportFile(lic, *out); err != nil {
		log.Fatalf("写入许可证失败: %v", err)
	}
	log.Printf("许可证已写入 %s", *out)

	// 记录签发台账
	if cfg.Ledger.Disabled {
		log.Println("台账已禁用，跳过记录")
		return
	}
	if err := model.InitDB(cfg.Ledger.Path); err != nil {
		log.Fatalf("初始化台账失败: %v", err)
	}
	if err := model.AutoMigrate(); err != nil {
		log.Fatalf("台账迁移失败: %v", err)
	}
	if err := model.DB.Create(model.NewIssuedLicense(lic, signer.DemoMode())).Error; err != nil {
		log.Fatalf("记录签发台账失败: %v", err)
	}
	log.Println("签发已记录到台账")
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	licPath := fs.String("license", "", "许可证文件")
	keysFile := fs.String("keys", "", "密钥对文件，默认取配置中的 keys.file")
	publicHex := fs.String("public", "", "验证公钥（hex），优先于密钥对文件")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLog(cfg)

	if *licPath == "" {
		log.Fatalf("缺少 -license 参数")
	}
	lic, err := license.ImportFile(*licPath)
	if err != nil {
		log.Fatalf("加载许可证失败: %v", err)
	}

	keyHex := *publicHex
	if keyHex == "" {
		keyPath := *keysFile
		if keyPath == "" {
			keyPath = cfg.Keys.File
		}
		priv, err := keys.ImportKeyPair(keyPath)
		if err != nil {
			log.Fatalf("加载密钥对失败: %v", err)
		}
		keyHex, err = keys.PublicKeyHex(&priv.PublicKey)
		if err != nil {
			log.Fatalf("编码公钥失败: %v", err)
		}
	}

	provider := hardware.NewProvider(
		hardware.WithPermitVirtualAddresses(cfg.Validation.PermitVirtualAddresses),
	)
	v, err := validator.New(lic, keyHex, validator.WithHardwareProvider(provider))
	if err != nil {
		log.Fatalf("创建验证器失败: %v", err)
	}
	v.SetIgnoreFloatTime(cfg.Validation.IgnoreFloatTime)
	v.SetCheckClockTurnback(!cfg.Validation.SkipClockCheck)
	for _, sig := range cfg.Validation.Blacklist {
		v.AddBlacklistedLicense(sig)
	}

	state, _ := v.Validate()
	for _, r := range state.Results() {
		mark := "PASS"
		if !r.Passed() {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", mark, r.Test().Name, r.Description())
	}
	if remaining := v.TimeRemaining(time.Now()); remaining != nil {
		fmt.Printf("剩余有效期: %s\n", remaining)
	}

	if !state.Valid() {
		log.Println("许可证未通过验证")
		os.Exit(1)
	}
	log.Println("许可证有效")
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	licPath := fs.String("license", "", "许可证文件")
	fs.Parse(args)

	if *licPath == "" {
		log.Fatalf("缺少 -license 参数")
	}
	lic, err := license.ImportFile(*licPath)
	if err != nil {
		log.Fatalf("加载许可证失败: %v", err)
	}

	fmt.Printf("版本:       %d\n", lic.LicenseVersion())
	fmt.Printf("已签名:     %v\n", lic.IsSigned())
	fmt.Printf("创建日期:   %s\n", lic.CreationDate().Format(time.RFC3339))
	fmt.Printf("生效日期:   %s\n", lic.StartDate().Format(time.RFC3339))
	if exp := lic.ExpirationDate(); exp != nil {
		fmt.Printf("过期日期:   %s\n", exp.Format(time.RFC3339))
	} else {
		fmt.Println("过期日期:   无")
	}
	if p := lic.FloatingExpirationPeriod(); p != nil {
		fmt.Printf("浮动有效期: %s\n", p)
	}
	if addrs := lic.HardwareAddresses(); len(addrs) > 0 {
		fmt.Printf("硬件绑定:   %s\n", strings.Join(addrs, " "))
	}

	props := lic.Properties()
	if len(props) > 0 {
		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		sort.Strings(names)
		fmt.Println("属性:")
		for _, k := range names {
			fmt.Printf("  %s = %s\n", k, props[k])
		}
	}
}

func runHwinfo(args []string) {
	fs := flag.NewFlagSet("hwinfo", flag.ExitOnError)
	virtual := fs.Bool("virtual", false, "包含虚拟网卡地址")
	fs.Parse(args)

	provider := hardware.NewProvider(hardware.WithPermitVirtualAddresses(*virtual))
	addrs := provider.SystemMACAddresses()
	if len(addrs) == 0 {
		log.Println("未发现可用的硬件地址")
		return
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
}

func runVersion() {
	fmt.Printf("LicenseKit %s (build %s)\n", entitlement.Version(),
		entitlement.BuildDate().Format("2006-01-02"))
	ent := entitlement.Load()
	fmt.Println(ent.Description())
}
