package dto

// CreateUserRequest payload for provisioning an account.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"fullName" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=ADMIN AUDITOR OPERATOR"`
}

// UpdateUserRequest payload for modifying an account. Nil fields are unchanged.
type UpdateUserRequest struct {
	FullName *string `json:"fullName"`
	Role     *string `json:"role" binding:"omitempty,oneof=ADMIN AUDITOR OPERATOR"`
	Active   *bool   `json:"active"`
}
