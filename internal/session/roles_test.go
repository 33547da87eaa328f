package session

import (
	"testing"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRole_SingleLiveHolder(t *testing.T) {
	s, sink, _ := newTestSession(t, "ASTHMA-SEV-001")

	token, err := s.ClaimRole(domain.RoleExaminer, "instructor-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, s.Authorize(domain.RoleExaminer, token))

	_, err = s.ClaimRole(domain.RoleExaminer, "instructor-2")
	assert.ErrorIs(t, err, domain.ErrRoleTaken)

	other, err := s.ClaimRole(domain.RoleExaminee, "student-1")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Authorize(domain.RoleExaminer, other), domain.ErrAuthorization)

	require.NoError(t, s.ReleaseRole(domain.RoleExaminer, token))
	assert.ErrorIs(t, s.Authorize(domain.RoleExaminer, token), domain.ErrAuthorization)

	next, err := s.ClaimRole(domain.RoleExaminer, "instructor-2")
	require.NoError(t, err)
	assert.NotEqual(t, token, next)
	assert.ErrorIs(t, s.ReleaseRole(domain.RoleExaminer, token), domain.ErrAuthorization, "stale token cannot evict the new holder")

	assert.Len(t, sink.Named(domain.EventParticipantJoined), 3)
	assert.Len(t, sink.Named(domain.EventParticipantLeft), 1)

	snap, err := s.Snapshot(domain.RoleExaminer)
	require.NoError(t, err)
	assert.Equal(t, "instructor-2", snap.Participants[0].UserID)
	assert.True(t, snap.Participants[0].Connected)
	assert.NotNil(t, snap.Participants[0].JoinedAt)
}

func TestClaimRole_Validation(t *testing.T) {
	s, _, _ := newTestSession(t, "ASTHMA-SEV-001")

	_, err := s.ClaimRole(domain.RoleExaminee, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.ClaimRole(domain.Role("observer"), "u1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
