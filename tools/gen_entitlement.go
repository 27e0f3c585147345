package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"license-kit/entitlement"
	"license-kit/keys"
	"license-kit/license"
)

// 生成厂商自身的 LicenseKit.lic，随发行版放在可执行文件同目录。
func main() {
	keysFile := flag.String("keys", "vendor.keys", "厂商密钥对文件")
	out := flag.String("out", "LicenseKit.lic", "授权文件输出路径")
	name := flag.String("name", "LicenseKit", "被授权人名称")
	company := flag.String("company", "LicenseKit Software", "被授权公司")
	email := flag.String("email", "support@licensekit.example", "被授权邮箱")
	support := flag.Int("support", 3, "支持期年数")
	flag.Parse()

	priv, err := keys.ImportKeyPair(*keysFile)
	if err != nil {
		log.Fatalf("加载厂商密钥对失败: %v", err)
	}

	p := entitlement.Product()
	lic := license.NewLicense()
	props := map[string]string{
		"name":    *name,
		"company": *company,
		"email":   *email,

		"product_" + p.Codename:                    p.DisplayName,
		"product_" + p.Codename + "_majorVersion":  strconv.Itoa(p.MajorVersion),
		"product_" + p.Codename + "_supportLength": strconv.Itoa(*support),
	}
	for k, v := range props {
		if err := lic.SetProperty(k, v); err != nil {
			log.Fatalf("设置属性 %s 失败: %v", k, err)
		}
	}

	// 厂商给自己签发，不经过授权引导
	signer, err := license.NewSigner(priv)
	if err != nil {
		log.Fatalf("创建签名器失败: %v", err)
	}
	if err := signer.Sign(lic); err != nil {
		log.Fatalf("签名失败: %v", err)
	}
	if err := license.ExportFile(lic, *out); err != nil {
		log.Fatalf("写入授权文件失败: %v", err)
	}

	log.Printf("自身授权已写入 %s", *out)
	fmt.Print(license.ExportString(lic))
}
