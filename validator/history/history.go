// Package history 维护许可证的最早运行时间记录，
// 供浮动有效期检查在多个存储后端之间取最小值并回写修复。
package history

import "time"

// fingerprintLength 存储键保留的签名前缀长度，与历史版本的键格式保持兼容。
const fingerprintLength = 63

// Store 最早运行时间的持久化后端。
// 读写失败一律静默：读取视为无记录，写入尽力而为。
type Store interface {
	// EarliestRun 返回该签名的最早运行时间，无记录时 ok 为 false。
	EarliestRun(signature string) (at time.Time, ok bool)

	// SetEarliestRun 记录该签名的最早运行时间。
	SetEarliestRun(signature string, at time.Time)
}

// Fingerprint 把签名截断为存储键。
func Fingerprint(signature string) string {
	if len(signature) > fingerprintLength {
		return signature[:fingerprintLength]
	}
	return signature
}

// Earliest 取 now 与所有后端记录中的最早时间。
// 清除单个后端的记录无法延长浮动窗口。
func Earliest(stores []Store, signature string, now time.Time) time.Time {
	earliest := now
	for _, s := range stores {
		if at, ok := s.EarliestRun(signature); ok && at.Before(earliest) {
			earliest = at
		}
	}
	return earliest
}

// Record 把最早时间回写到全部后端，修复缺失或被清除的记录。
func Record(stores []Store, signature string, at time.Time) {
	for _, s := range stores {
		s.SetEarliestRun(signature, at)
	}
}
