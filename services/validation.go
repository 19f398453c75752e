package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"medquest/leveling"
	"medquest/models"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (s *XPService) validateActivity(userID string, track models.Track, activity models.ActivityType, meta models.ActivityMetadata) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if !track.Valid() {
		return &ValidationError{Field: "track", Reason: fmt.Sprintf("unknown track %q", track)}
	}
	if !activity.BelongsTo(track) {
		return &ValidationError{
			Field:  "activityType",
			Reason: fmt.Sprintf("%q is not an activity of %s", activity, track),
			Err:    leveling.ErrUnknownActivity,
		}
	}
	if err := s.validate.Struct(meta); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			reason := fmt.Sprintf("failed %q validation", fe.Tag())
			if fe.Param() != "" {
				reason = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
			}
			return &ValidationError{Field: "metadata." + fe.Field(), Reason: reason, Err: err}
		}
		return &ValidationError{Field: "metadata", Reason: err.Error(), Err: err}
	}
	return nil
}
