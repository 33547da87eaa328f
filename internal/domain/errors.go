package domain

import "errors"

// 引擎错误分类，调用方用 errors.Is 判断
var (
	ErrAuthorization       = errors.New("not authorized")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrSimulationNotActive = errors.New("simulation not active")
	ErrValidation          = errors.New("validation failed")

	ErrRoleTaken         = errors.New("role already claimed")
	ErrNotJoined         = errors.New("not joined to a session")
	ErrJoinCodeExhausted = errors.New("join code space exhausted")
	ErrReentry           = errors.New("progression node re-entry")
	ErrClosed            = errors.New("engine is shutting down")
)

// Code 错误分类码，用于应答和 HTTP 状态映射
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorization):
		return "AUTHORIZATION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrSimulationNotActive):
		return "SIMULATION_NOT_ACTIVE"
	case errors.Is(err, ErrRoleTaken):
		return "ROLE_TAKEN"
	case errors.Is(err, ErrNotJoined):
		return "NOT_JOINED"
	case errors.Is(err, ErrJoinCodeExhausted):
		return "JOIN_CODE_EXHAUSTED"
	case errors.Is(err, ErrReentry):
		return "REENTRY"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrClosed):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
