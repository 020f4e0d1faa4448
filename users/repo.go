package users

type UserRepo interface {
	Upsert(user *User) error
	GetByID(ID string) (*User, error)
	GetByEmail(email string) (*User, error)
	GetByUsername(username string) (*User, error)
	// GetByIdentifier resolves either a username or an email address
	GetByIdentifier(identifier string) (*User, error)
	SetVerified(ID string, verified bool) error
}
