package rule_test

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/rule"
)

type searchConf struct {
	DefaultLimit int    `mapstructure:"default_limit" rule:"min=1,ltefield=MaxLimit"`
	MaxLimit     int    `mapstructure:"max_limit"     rule:"min=1,max=1000"`
	Language     string `mapstructure:"language"      rule:"required"`
}

func TestValidateStruct(t *testing.T) {
	require.NotNil(t, rule.Engine())

	cases := []struct {
		name string
		in   searchConf
		bad  []string
	}{
		{"valid", searchConf{DefaultLimit: 20, MaxLimit: 100, Language: "simple"}, nil},
		{"missing language", searchConf{DefaultLimit: 20, MaxLimit: 100}, []string{"language"}},
		{"default above max", searchConf{DefaultLimit: 200, MaxLimit: 100, Language: "simple"}, []string{"default_limit"}},
		{"zero limits", searchConf{Language: "simple"}, []string{"default_limit", "max_limit"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rule.ValidateStruct(tc.in)
			if tc.bad == nil {
				require.NoError(t, err)
				return
			}

			errs := rule.Errors(err)
			require.Len(t, errs, len(tc.bad), "errors: %v", errs)

			for _, key := range tc.bad {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestErrorsUseConfigKeys(t *testing.T) {
	type app struct {
		Search searchConf `mapstructure:"search"`
	}

	errs := rule.Errors(rule.ValidateStruct(app{Search: searchConf{DefaultLimit: 1, MaxLimit: 2000, Language: "simple"}}))
	assert.Equal(t, rule.ValidationErrors{"search.max_limit": "failed on 'max=1000'"}, errs)

	assert.Nil(t, rule.Errors(nil))
	assert.Nil(t, rule.Errors(assert.AnError))
}

func TestRegisterValidationAndAlias(t *testing.T) {
	require.NoError(t, rule.RegisterValidation("jpeg_key", func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && (strings.HasSuffix(s, ".jpg") || strings.HasSuffix(s, ".jpeg"))
	}))
	rule.RegisterAlias("jpeg_object", "required,object_key,jpeg_key")

	require.NoError(t, rule.ValidateVar("u/1/a.jpeg", "jpeg_object"))
	require.Error(t, rule.ValidateVar("u/1/a.png", "jpeg_object"))
	require.Error(t, rule.ValidateVar("../a.jpg", "jpeg_object"))
	require.Error(t, rule.ValidateVar("", "jpeg_object"))
}

func TestObjectKey(t *testing.T) {
	for _, k := range []string{"u/1/a.jpg", "a.jpg", "2024/01/x..y.png"} {
		assert.NoError(t, rule.ValidateVar(k, "object_key"), k)
	}

	for _, k := range []string{"", "/abs.jpg", "u/../etc", "..", "a\\b.jpg", "a\nb.jpg"} {
		assert.Error(t, rule.ValidateVar(k, "object_key"), k)
	}
}

func TestPhotoTag(t *testing.T) {
	require.NoError(t, rule.ValidateVar([]string{"beach", " Sun ", "日落"}, "dive,photo_tag"))

	for _, tag := range []string{"  ", "a,b", strings.Repeat("x", rule.MaxTagLength+1)} {
		assert.Error(t, rule.ValidateVar(tag, "photo_tag"), tag)
	}

	assert.NoError(t, rule.ValidateVar(strings.Repeat("图", rule.MaxTagLength), "photo_tag"))
}

func TestRegisterGinValidations(t *testing.T) {
	require.NoError(t, rule.RegisterGinValidations())
	require.NoError(t, rule.RegisterGinValidations())

	type req struct {
		FilePath string   `binding:"required,object_key"`
		Tags     []string `binding:"dive,photo_tag"`
	}

	assert.Error(t, binding.Validator.ValidateStruct(req{FilePath: "../x"}))
	assert.Error(t, binding.Validator.ValidateStruct(req{FilePath: "u/1/x.jpg", Tags: []string{"a,b"}}))
	assert.NoError(t, binding.Validator.ValidateStruct(req{FilePath: "u/1/x.jpg", Tags: []string{"sea"}}))
}
