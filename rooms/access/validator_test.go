package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/rooms"
	"github.com/imtaco/room-relay/rooms/mocks"
)

type ValidatorTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	dir       *mocks.MockDirectory
	validator Validator
	ctx       context.Context
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorTestSuite))
}

func (s *ValidatorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.dir = mocks.NewMockDirectory(s.ctrl)
	s.validator = NewValidator(s.dir, log.NewTest(s.T()))
	s.ctx = context.Background()
}

func (s *ValidatorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ValidatorTestSuite) room(max int, inviteOnly bool) *rooms.Room {
	return &rooms.Room{
		Code:            "abc-xyz",
		OwnerID:         "owner",
		MaxParticipants: max,
		IsActive:        true,
		InviteOnly:      inviteOnly,
		Participants:    []string{"owner"},
	}
}

func (s *ValidatorTestSuite) requireReason(err error, want Reason) {
	s.Require().Error(err)
	s.True(errors.Is(err, ErrAccessDenied))
	got, ok := ReasonOf(err)
	s.Require().True(ok)
	s.Equal(want, got)
}

func (s *ValidatorTestSuite) TestInvalidFormatNeverTouchesDirectory() {
	// no expectations: any directory call fails the test
	for _, c := range []string{"", "ABC-XYZ", "abcxyz", "abc-xy1", "abc-xyzz"} {
		_, err := s.validator.Check(s.ctx, c, "user")
		s.requireReason(err, ReasonInvalidFormat)
	}
}

func (s *ValidatorTestSuite) TestRoomNotFound() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(nil, nil)

	_, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.requireReason(err, ReasonRoomNotFound)
}

func (s *ValidatorTestSuite) TestRoomInactive() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(4, false), nil)
	s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(false, nil)

	_, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.requireReason(err, ReasonRoomInactive)
}

func (s *ValidatorTestSuite) TestInviteOnlyRejectsStrangers() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(4, true), nil)
	s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(true, nil)
	s.dir.EXPECT().IsMember(gomock.Any(), "abc-xyz", "user").Return(false, nil)

	_, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.requireReason(err, ReasonNotAMember)
}

func (s *ValidatorTestSuite) TestInviteOnlyAdmitsMembersEvenWhenFull() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(1, true), nil)
	s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(true, nil)
	s.dir.EXPECT().IsMember(gomock.Any(), "abc-xyz", "owner").Return(true, nil)

	room, err := s.validator.Check(s.ctx, "abc-xyz", "owner")
	s.Require().NoError(err)
	s.Equal("owner", room.OwnerID)
}

func (s *ValidatorTestSuite) TestRoomFull() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(2, false), nil)
	s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(true, nil)
	s.dir.EXPECT().IsMember(gomock.Any(), "abc-xyz", "user").Return(false, nil)
	s.dir.EXPECT().ParticipantCount(gomock.Any(), "abc-xyz").Return(2, nil)

	_, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.requireReason(err, ReasonRoomFull)
}

func (s *ValidatorTestSuite) TestGranted() {
	gomock.InOrder(
		s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(2, false), nil),
		s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(true, nil),
		s.dir.EXPECT().IsMember(gomock.Any(), "abc-xyz", "user").Return(false, nil),
		s.dir.EXPECT().ParticipantCount(gomock.Any(), "abc-xyz").Return(1, nil),
	)

	room, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.Require().NoError(err)
	s.Equal("abc-xyz", room.Code)
}

func (s *ValidatorTestSuite) TestDirectoryFailure() {
	s.dir.EXPECT().FindByCode(gomock.Any(), "abc-xyz").Return(s.room(2, false), nil)
	s.dir.EXPECT().IsActive(gomock.Any(), "abc-xyz").Return(false, context.DeadlineExceeded)

	room, err := s.validator.Check(s.ctx, "abc-xyz", "user")
	s.Require().Error(err)
	s.Nil(room)
	s.True(errors.Is(err, rooms.ErrDirectoryUnavailable))
	s.False(errors.Is(err, ErrAccessDenied))
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *ValidatorTestSuite) TestConstructorRequiresDependencies() {
	s.Panics(func() { NewValidator(nil, log.NewNop()) })
	s.Panics(func() { NewValidator(s.dir, nil) })
}
