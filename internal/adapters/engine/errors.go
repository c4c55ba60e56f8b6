package engine

import (
	"errors"

	"github.com/eleven-am/loom/internal/domain"
)

func errorLogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	attrs := []any{
		"error", err,
		"error_kind", string(domain.KindOf(err)),
	}

	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		attrs = append(attrs, "store_op", storeErr.Op)
		if storeErr.Key != "" {
			attrs = append(attrs, "store_key", storeErr.Key)
		}
	}

	var nodeErr *domain.NodeExecutionError
	if errors.As(err, &nodeErr) {
		attrs = append(attrs,
			"failure_kind", nodeErr.Kind,
			"failure_retryable", nodeErr.Retryable,
			"attempt", nodeErr.Attempt,
		)
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		attrs = append(attrs, "validation_issues", len(validationErr.Issues))
	}

	return attrs
}
