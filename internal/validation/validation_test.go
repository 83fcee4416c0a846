package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ValidationTestSuite struct {
	suite.Suite
	validator *validator.Validate
}

func (s *ValidationTestSuite) SetupTest() {
	s.validator = validator.New()
}

func TestValidationTestSuite(t *testing.T) {
	suite.Run(t, new(ValidationTestSuite))
}

func (s *ValidationTestSuite) TestValidateRoomCode() {
	s.Require().NoError(RegisterTags(s.validator))

	type joinParams struct {
		RoomCode string `validate:"required,roomcode"`
	}

	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "abc-xyz", false},
		{"uppercase", "ABC-xyz", true},
		{"missing hyphen", "abcxyz", true},
		{"hyphen misplaced", "ab-cxyz", true},
		{"too long", "abc-xyzz", true},
		{"digits", "ab1-xyz", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.validator.Struct(joinParams{RoomCode: tt.code})
			if tt.wantErr {
				s.Error(err)
			} else {
				s.NoError(err)
			}
		})
	}
}

func (s *ValidationTestSuite) TestRegisterTags() {
	s.Require().NoError(RegisterTags(s.validator))

	type createParams struct {
		Name            string `validate:"roomname"`
		MaxParticipants int    `validate:"capacity"`
	}

	s.NoError(s.validator.Struct(createParams{Name: "standup", MaxParticipants: 10}))
	s.Error(s.validator.Struct(createParams{Name: "", MaxParticipants: 10}))
	s.Error(s.validator.Struct(createParams{Name: "standup", MaxParticipants: 101}))
}

func (s *ValidationTestSuite) TestGinBindingKnowsTags() {
	v, err := ginValidator()
	s.Require().NoError(err)

	type joinBody struct {
		RoomCode string `binding:"required,roomcode"`
		Name     string `binding:"roomname"`
	}
	s.NoError(v.Struct(joinBody{RoomCode: "abc-xyz", Name: "standup"}))
	s.Error(v.Struct(joinBody{RoomCode: "abcxyz", Name: "standup"}))
}

func (s *ValidationTestSuite) TestNewUsesJSONNamesAndTags() {
	v := New()

	type createParams struct {
		Name            string `json:"name" validate:"required,roomname"`
		MaxParticipants int    `json:"maxParticipants" validate:"capacity"`
		RoomCode        string `json:"roomCode" validate:"omitempty,roomcode"`
	}

	s.NoError(v.Struct(createParams{Name: "standup", MaxParticipants: 4}))
	s.NoError(v.Struct(createParams{Name: "standup", RoomCode: "abc-xyz"}))

	err := v.Struct(createParams{Name: "standup", MaxParticipants: 500})
	s.Require().Error(err)
	s.Equal("maxParticipants", FirstField(err))

	err = v.Struct(createParams{Name: "standup", RoomCode: "nope"})
	s.Equal("roomCode", FirstField(err))

	err = v.Struct(createParams{})
	s.Equal("name", FirstField(err))
}

func (s *ValidationTestSuite) TestFormatValidationError() {
	type TestStruct struct {
		Email string `validate:"required,email"`
		Age   int    `validate:"required,min=18,max=120"`
		Name  string `validate:"required,min=2"`
	}

	err := s.validator.Struct(TestStruct{Email: "invalid-email", Age: 10, Name: "A"})
	s.Require().Error(err)

	formatted := FormatValidationError(err)
	s.Len(formatted, 3)

	fields := make(map[string]bool)
	for _, e := range formatted {
		fields[e.Field] = true
		s.NotEmpty(e.Message)
	}
	s.True(fields["Email"])
	s.True(fields["Age"])
	s.True(fields["Name"])
}

func (s *ValidationTestSuite) TestFormatValidationErrorNonValidationError() {
	s.Empty(FormatValidationError(nil))
	s.Empty(FormatValidationError(assert.AnError))
	s.Empty(FirstField(assert.AnError))
}
