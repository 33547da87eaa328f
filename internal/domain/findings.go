package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Findings 体格检查发现树（任意嵌套）
type Findings map[string]any

// FindingPath 发现树地址，有序的段列表
type FindingPath []string

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseFindingPath 解析 "respiratory.breathSounds.leftUpperLobe"
func ParseFindingPath(s string) (FindingPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty finding path", ErrValidation)
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if !segmentPattern.MatchString(p) {
			return nil, fmt.Errorf("%w: invalid segment %d %q in finding path %q", ErrValidation, i, p, s)
		}
	}
	return FindingPath(parts), nil
}

// String 点分形式
func (p FindingPath) String() string {
	return strings.Join(p, ".")
}

// HasPrefix 段级前缀判断（"cardiac" 不是 "cardiacRhythm" 的前缀）
func (p FindingPath) HasPrefix(prefix FindingPath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// MarshalJSON 以点分字符串输出
func (p FindingPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON 接受点分字符串
func (p *FindingPath) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: finding path must be a string", ErrValidation)
	}
	parsed, err := ParseFindingPath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// FindingsSchema 场景声明的可写路径前缀；为空表示不限制
type FindingsSchema []FindingPath

// Allows 路径是否落在某个声明前缀之下
func (s FindingsSchema) Allows(p FindingPath) bool {
	if len(s) == 0 {
		return true
	}
	for _, prefix := range s {
		if p.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

// Clone 深拷贝
func (f Findings) Clone() Findings {
	if f == nil {
		return Findings{}
	}
	return cloneValue(map[string]any(f)).(map[string]any)
}

// Get 读取路径上的值
func (f Findings) Get(p FindingPath) (any, bool) {
	var cur any = map[string]any(f)
	for _, seg := range p {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set 按路径写入叶子，按需创建中间节点。
// 中间段已经是叶子值时拒绝，不会把叶子悄悄替换成对象。
func (f Findings) Set(p FindingPath, value any) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty finding path", ErrValidation)
	}
	cur := map[string]any(f)
	for i, seg := range p[:len(p)-1] {
		next, exists := cur[seg]
		if !exists || next == nil {
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return fmt.Errorf("%w: %q is a leaf, cannot descend into %q",
				ErrValidation, FindingPath(p[:i+1]).String(), p.String())
		}
		cur = m
	}
	cur[p[len(p)-1]] = cloneValue(value)
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Findings:
		return map[string]any(m), true
	}
	return nil, false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Findings:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
