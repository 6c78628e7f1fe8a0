package models

import "time"

// Roles understood by the authorizer.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
)

// User struct matches the document in MongoDB
type User struct {
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Password  string    `bson:"password" json:"-"`
	Role      string    `bson:"role" json:"role"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
