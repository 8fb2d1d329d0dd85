package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// describe flattens validator errors into "Field: rule" pairs.
func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

type GradeInput struct {
	TestID    string  `validate:"required"`
	StudentID string  `validate:"required"`
	Grade     float64 `validate:"gte=0,lte=100"`
	Comment   string  `validate:"max=2000"`
	Passed    bool
}

type WordInput struct {
	WordID        string `validate:"required"`
	English       string `validate:"notblank,max=200"`
	Translation   string `validate:"notblank,max=200"`
	Transcription string `validate:"max=200"`
}

type UnitInput struct {
	Title       string `validate:"notblank,max=200"`
	Description string `validate:"max=2000"`
	Icon        string `validate:"max=32"`
}

type MessageInput struct {
	GroupID string `validate:"required"`
	Content string `validate:"notblank,max=4000"`
}

type ChatGroupInput struct {
	Name      string   `validate:"notblank,max=200"`
	Members   []string `validate:"min=2,dive,required"`
	AvatarURL string   `validate:"omitempty,url"`
}

type ProgressInput struct {
	UnitID    string `validate:"required"`
	RoundID   string `validate:"required"`
	Questions int    `validate:"gte=1"`
}
