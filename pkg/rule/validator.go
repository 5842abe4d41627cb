// Package rule 提供结构体和字段验证功能的封装，基于 go-playground/validator 实现.
//
// 配置使用 `rule` 标签，错误字段名取 mapstructure 名，例如 search.max_limit.
// 照片领域的自定义规则同时注册到 gin 的 binding 引擎，请求结构体可以直接使用：
//
//	object_key  对象存储中的相对路径，不能以 / 开头，不能包含 .. 段
//	photo_tag   去除首尾空白后非空，最多 64 个字符，不含逗号
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxTagLength 单个标签的最大字符数.
const MaxTagLength = 64

var (
	inst *validator.Validate
	once sync.Once

	ginOnce sync.Once
	ginErr  error
)

// domainRules 自定义规则.
var domainRules = map[string]validator.Func{
	"object_key": validateObjectKey,
	"photo_tag":  validatePhotoTag,
}

// initValidator 创建独立的 validator. 不复用 gin 的引擎，否则修改 tag name 会让 binding 标签失效.
func initValidator() {
	inst = validator.New(validator.WithRequiredStructEnabled())
	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(fieldName)

	for tag, fn := range domainRules {
		if err := inst.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("rule: register %s: %v", tag, err))
		}
	}
}

// fieldName 优先使用 mapstructure 名，其次 json 名.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"mapstructure", "json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}

		if name != "" {
			return name
		}
	}

	return f.Name
}

// lazyInit 初始化全局 validator（幂等）.
func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate，若未初始化则先初始化.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterGinValidations 把自定义规则注册到 gin 的 binding 引擎（幂等）.
func RegisterGinValidations() error {
	ginOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			ginErr = errors.New("gin binding engine is not go-playground/validator")
			return
		}

		for tag, fn := range domainRules {
			if err := v.RegisterValidation(tag, fn); err != nil {
				ginErr = fmt.Errorf("register %s: %w", tag, err)
				return
			}
		}
	})

	return ginErr
}

// RegisterValidation 代理 RegisterValidation，确保已初始化.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 是格式化后的验证错误字典，键为字段路径（去掉根结构体名），值为可读错误信息.
type ValidationErrors map[string]string

// Errors 将 validator 的错误展开为 字段 -> 描述，非校验错误返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		cond := fe.Tag()
		if fe.Param() != "" {
			cond += "=" + fe.Param()
		}

		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}

		out[path] = fmt.Sprintf("failed on '%s'", cond)
	}

	return out
}

// ValidateStruct 对结构体执行完整校验，返回原始 error（可用 Errors 解析）.
func ValidateStruct(s any) error {
	lazyInit()

	return inst.Struct(s)
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar("a/b.jpg", "required,object_key").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 包装 RegisterAlias，便于注册别名规则.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}

func validateObjectKey(fl validator.FieldLevel) bool {
	key, ok := fl.Field().Interface().(string)
	if !ok || key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, '\\') {
		return false
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return false
		}
	}

	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return false
		}
	}

	return true
}

func validatePhotoTag(fl validator.FieldLevel) bool {
	tag, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	tag = strings.TrimSpace(tag)

	return tag != "" && utf8.RuneCountInString(tag) <= MaxTagLength && !strings.Contains(tag, ",")
}
