package registry

import (
	"fmt"
	"io"
	"strings"
)

// JoinCodeAlphabet 去掉 0/O、1/I 的 32 个字符
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// JoinCodeLength 加入码长度
const JoinCodeLength = 6

// generateJoinCode 从 r 读取随机字节生成加入码。
// 字母表长度 32 整除 256，取模不会产生偏差。
func generateJoinCode(r io.Reader) (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = JoinCodeAlphabet[int(b)%len(JoinCodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeJoinCode 去空白并转大写
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsJoinCode 是否符合加入码格式（大小写不敏感）
func IsJoinCode(code string) bool {
	code = NormalizeJoinCode(code)
	if len(code) != JoinCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, c) {
			return false
		}
	}
	return true
}
