package domain

import (
	"fmt"
	"strings"
)

// Role 连接声明的角色
type Role string

const (
	RoleExaminer Role = "examiner"
	RoleExaminee Role = "examinee"
	RoleManikin  Role = "manikin"
)

// Roles 固定的角色槽位顺序
var Roles = []Role{RoleExaminer, RoleExaminee, RoleManikin}

// ParseRole 解析角色（大小写不敏感）
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleExaminer, RoleExaminee, RoleManikin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Status 会话生命周期状态
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)
