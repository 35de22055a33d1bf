package ecode

import "fmt"

// FieldIsRequired returns field required message
func FieldIsRequired(field string) string {
	return fmt.Sprintf("%s is required", field)
}

// NotExist returns not exist message
func NotExist(what string) string {
	return fmt.Sprintf("%s does not exist", what)
}

// Mismatch returns mismatch message
func Mismatch(what string) string {
	return fmt.Sprintf("%s does not match", what)
}
