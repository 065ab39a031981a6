package model

// FieldError is a user-facing validation or business-rule failure tied to
// one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UserResult is the outcome of register and login. Exactly one of User and
// Errors is set.
type UserResult struct {
	User   *User
	Errors []FieldError
}

// Failed reports whether the result carries field errors.
func (r UserResult) Failed() bool {
	return len(r.Errors) > 0
}

// FieldFailure builds a result holding a single field error.
func FieldFailure(field, message string) UserResult {
	return UserResult{Errors: []FieldError{{Field: field, Message: message}}}
}

// UserResultResponse is the JSON shape of a UserResult.
type UserResultResponse struct {
	Errors []FieldError  `json:"errors,omitempty"`
	User   *UserResponse `json:"user,omitempty"`
}

// ToResponse converts the result for API output.
func (r UserResult) ToResponse() UserResultResponse {
	return UserResultResponse{
		Errors: r.Errors,
		User:   r.User.ToResponse(),
	}
}
