package license

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrImport 许可证导入失败：必填字段缺失或无法解析
var ErrImport = errors.New("许可证导入失败")

// FromProperties 从键值对构造许可证并校验必填字段。
// creationDate 与 startDate 必须存在且为整数毫秒时间戳；
// expirationDate 与 version 若存在也必须可解析。
// 导入成功不代表许可证有效，有效性由验证流程判定。
func FromProperties(props map[string]string) (*License, error) {
	copied := make(map[string]string, len(props))
	for k, v := range props {
		copied[k] = v
	}

	if !parsesAsMillis(copied, keyCreationDate) {
		return nil, fmt.Errorf("%w: 创建日期无效", ErrImport)
	}
	if !parsesAsMillis(copied, keyStartDate) {
		return nil, fmt.Errorf("%w: 生效日期无效", ErrImport)
	}
	if str, ok := copied[keyExpirationDate]; ok {
		if _, err := strconv.ParseInt(str, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: 过期日期无效", ErrImport)
		}
	}
	if str, ok := copied[keyVersion]; ok {
		if _, err := strconv.Atoi(str); err != nil {
			return nil, fmt.Errorf("%w: 版本号无效", ErrImport)
		}
	}

	return &License{props: copied}, nil
}

func parsesAsMillis(props map[string]string, key string) bool {
	str, ok := props[key]
	if !ok {
		return false
	}
	_, err := strconv.ParseInt(str, 10, 64)
	return err == nil
}

// Import 从 reader 读取 key=value 行格式的许可证。
func Import(r io.Reader) (*License, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImport, err)
	}
	return ImportString(string(data))
}

// ImportString 从字符串解析许可证。
func ImportString(s string) (*License, error) {
	return FromProperties(parsePropertyLines(s))
}

// ImportFile 从文件加载许可证。
func ImportFile(path string) (*License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取许可证文件失败: %w", err)
	}
	return ImportString(string(data))
}

// parsePropertyLines 解析 UTF-8 的 key=value 行，
// 跳过空行和以 # 或 ! 开头的注释行。
func parsePropertyLines(s string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		props[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}
	return props
}

// Export 将许可证写为 key=value 行，键按字典序排列保证输出稳定。
// 已签名与未签名的许可证都可以导出。
func Export(l *License, w io.Writer) error {
	if _, err := io.WriteString(w, ExportString(l)); err != nil {
		return fmt.Errorf("导出许可证失败: %w", err)
	}
	return nil
}

// ExportString 返回许可证的持久化文本。
func ExportString(l *License) string {
	props := l.RawProperties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(props[k])
		b.WriteString("\n")
	}
	return b.String()
}

// ExportFile 将许可证写入文件，已存在时覆盖。
func ExportFile(l *License, path string) error {
	if err := os.WriteFile(path, []byte(ExportString(l)), 0644); err != nil {
		return fmt.Errorf("写入许可证文件失败: %w", err)
	}
	return nil
}
