package validator

import (
	"math/rand"
	"os"
	"time"
)

// clockSampleLimit 每个目录最多采样的条目数。
const clockSampleLimit = 50

// adjustForClockTurnback 用临时目录与用户主目录中文件的修改时间修正校验时间：
// 正常时钟下写入的文件构成回拨后的反证，取观察到的最大修改时间与给定时间的较大者。
// 所有探测失败均静默忽略。
func adjustForClockTurnback(date time.Time) time.Time {
	latest := date
	for _, dir := range clockScanDirs() {
		if t, ok := latestModTime(dir); ok && t.After(latest) {
			latest = t
		}
	}
	return latest
}

func clockScanDirs() []string {
	dirs := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	return dirs
}

// latestModTime 目录内最多 clockSampleLimit 个条目的最大修改时间。
// 条目更多时取均匀随机子集，保证扫描成本有界。
func latestModTime(dir string) (time.Time, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, false
	}
	if len(entries) > clockSampleLimit {
		rand.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})
		entries = entries[:clockSampleLimit]
	}

	var latest time.Time
	found := false
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime(); !found || mt.After(latest) {
			latest = mt
			found = true
		}
	}
	return latest, found
}

// runningOnAppEngine 托管沙箱内文件系统探测不可靠，时钟检查跳过。
func runningOnAppEngine() bool {
	return os.Getenv("GAE_ENV") != "" || os.Getenv("GAE_APPLICATION") != ""
}
