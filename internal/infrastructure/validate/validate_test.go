package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBody struct {
	CourseID string `json:"courseId" validate:"notblank,max=64"`
	Note     string `json:"note,omitempty" validate:"omitempty,max=3"`
}

func TestPlaygroundV10_Struct(t *testing.T) {
	v := NewValidator()

	assert.Nil(t, v.Struct(&syncBody{CourseID: "c1"}))

	errs := v.Struct(&syncBody{CourseID: "  ", Note: "toolong"})
	require.Len(t, errs, 2)
	assert.Equal(t, "courseId", errs[0].Domain)
	assert.Equal(t, "courseId must not be blank", errs[0].Reason)
	assert.Equal(t, "note", errs[1].Domain)
}

func TestPlaygroundV10_Translator(t *testing.T) {
	errs := NewValidator().Translator("zh", "en").Struct(&syncBody{})
	require.Len(t, errs, 1)
	assert.Equal(t, "courseId不能为空", errs[0].Reason)

	// unknown locales fall back to english
	errs = NewValidator().Translator("fr").Struct(&syncBody{})
	assert.Equal(t, "courseId must not be blank", errs[0].Reason)
}

func TestPlaygroundV10_Empty(t *testing.T) {
	v := NewValidator()
	assert.Nil(t, v.Empty("username", "alice"))
	errs := v.Empty("username", " ")
	require.Len(t, errs, 1)
	assert.Equal(t, "username is required", errs[0].Reason)
}
