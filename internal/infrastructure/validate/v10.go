package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	uni   *ut.UniversalTranslator
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator, messages are in english unless Translator picks another locale
func NewValidator() *PlaygroundV10 {
	en := en.New()
	uni := ut.New(en, en, zh.New())
	enTrans, _ := uni.GetTranslator("en")
	zhTrans, _ := uni.GetTranslator("zh")

	validate := validator.New()
	en_translations.RegisterDefaultTranslations(validate, enTrans)
	zh_translations.RegisterDefaultTranslations(validate, zhTrans)
	validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	registerMessage(validate, enTrans, "notblank", "{0} must not be blank")
	registerMessage(validate, zhTrans, "notblank", "{0}不能为空")
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = fld.Tag.Get("yaml")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	return &PlaygroundV10{
		core:  validate,
		uni:   uni,
		trans: enTrans,
	}
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) {
	v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		msg, _ := ut.T(tag, fe.Field())
		return msg
	})
}

// Translator returns a copy of v reporting in the best match of locales, eg. the Accept-Language values
func (v *PlaygroundV10) Translator(locales ...string) Validator {
	trans, _ := v.uni.FindTranslator(locales...)
	return &PlaygroundV10{core: v.core, uni: v.uni, trans: trans}
}

// Struct validate struct
func (v *PlaygroundV10) Struct(s interface{}) []*FieldError {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*FieldError{NewFieldError("", err.Error())}
	}
	result := make([]*FieldError, 0, len(errs))
	for _, item := range errs {
		result = append(result, NewFieldError(item.Field(), item.Translate(v.trans)))
	}
	return result
}

// Empty check if value is empty
func (v *PlaygroundV10) Empty(varName string, s interface{}) []*FieldError {
	if err := v.core.Var(s, "notblank"); err != nil {
		return []*FieldError{NewFieldError(varName, fmt.Sprintf("%s is required", varName))}
	}
	return nil
}
