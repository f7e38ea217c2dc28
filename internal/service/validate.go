package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// validateStruct 把 validator 的字段错误合并成一条 ValidationError
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return validationError("参数校验失败: %v", err)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fe.Field()+" "+fe.Tag()+"="+fe.Param())
		} else {
			parts = append(parts, fe.Field()+" "+fe.Tag())
		}
	}
	return validationError("参数校验失败: %s", strings.Join(parts, "; "))
}

type namedAmount struct {
	name  string
	value decimal.Decimal
}

// nonNegative 金额与百分比字段不允许为负，按传入顺序报告第一个
func nonNegative(fields ...namedAmount) error {
	for _, f := range fields {
		if f.value.IsNegative() {
			return validationError("%s 不能为负数", f.name)
		}
	}
	return nil
}
