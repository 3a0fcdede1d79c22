package repo

import (
	"github.com/chudeemeke/kite-pfm/internal/common"
)

// FieldRule is one typed validation rule for an entity field. Check returns
// a message when the rule fails, empty when it passes.
type FieldRule[T any] struct {
	Check func(*T) string
	Field string
}

// validate runs every configured rule and aggregates failures into a single
// ValidationErrors value.
func (r *Repository[T, P]) validate(entity *T) error {
	var failed []*common.ValidationError
	for _, rule := range r.cfg.Rules {
		if msg := rule.Check(entity); msg != "" {
			failed = append(failed, &common.ValidationError{Field: rule.Field, Message: msg})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if len(failed) == 1 {
		return failed[0]
	}
	return &common.ValidationErrors{Errors: failed}
}
