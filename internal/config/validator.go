package config

import (
	"errors"
	"fmt"

	pkgconfig "github.com/weisyn/evidence-anchor/pkg/interfaces/config"
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置验证失败 [%s]: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate 在启动时校验全部配置段，返回合并后的错误
func Validate(p pkgconfig.Provider) error {
	checks := []struct {
		field string
		fn    func() error
	}{
		{"log", p.GetLog().Validate},
		{"anchoring", p.GetAnchoring().Validate},
		{"batch_store", p.GetBatchStore().Validate},
		{"chain", p.GetChain().Validate},
		{"api", p.GetAPI().Validate},
		{"keystore", p.GetKeystore().Validate},
	}

	var errs []error
	for _, c := range checks {
		if err := c.fn(); err != nil {
			errs = append(errs, &ValidationError{Field: c.field, Err: err})
		}
	}
	return errors.Join(errs...)
}
