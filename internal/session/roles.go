package session

import (
	"fmt"
	"strings"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimRole 占用角色槽位并返回令牌；槽位被在线连接占用时返回 ErrRoleTaken
func (s *Session) ClaimRole(role domain.Role, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[role]
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	if p.Connected {
		return "", fmt.Errorf("%w: %s is held by %s", domain.ErrRoleTaken, role, p.UserID)
	}

	now := s.now().UTC()
	p.UserID = userID
	p.Connected = true
	p.token = uuid.New().String()
	if p.JoinedAt == nil {
		p.JoinedAt = &now
	}
	p.LeftAt = nil

	s.logger.Info("Role claimed", zap.String("role", string(role)), zap.String("user_id", userID))
	s.emit(domain.EventParticipantJoined, domain.ParticipantData{UserID: userID, Role: role})
	return p.token, nil
}

// ReleaseRole 释放槽位；令牌不匹配（已被重新占用）时返回 ErrAuthorization
func (s *Session) ReleaseRole(role domain.Role, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.authorize(role, token)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	p.Connected = false
	p.LeftAt = &now
	p.token = ""

	s.logger.Info("Role released", zap.String("role", string(role)), zap.String("user_id", p.UserID))
	s.emit(domain.EventParticipantLeft, domain.ParticipantData{UserID: p.UserID, Role: role})
	return nil
}

// Authorize 校验令牌是否仍持有该角色
func (s *Session) Authorize(role domain.Role, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.authorize(role, token)
	return err
}

func (s *Session) authorize(role domain.Role, token string) (*Participant, error) {
	p, ok := s.participants[role]
	if !ok || !p.Connected || token == "" || p.token != token {
		return nil, fmt.Errorf("%w: no live claim on role %s", domain.ErrAuthorization, role)
	}
	return p, nil
}
