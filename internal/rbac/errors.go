package rbac

import "errors"

var (
	ErrInvalidInput = errors.New("rbac: invalid input")
	ErrNotFound     = errors.New("rbac: not found")
	ErrConflict     = errors.New("rbac: resource conflict")
	ErrSystemRole   = errors.New("rbac: system roles cannot be deleted")
)
