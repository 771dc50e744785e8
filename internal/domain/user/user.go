package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a back-office customer record. GenderID and CityID reference the
// gender and city tables; empty values mean "not provided".
type User struct {
	ID       string
	Name     string
	Surname  string
	Email    string
	Address  string
	GenderID string
	CityID   string
}

// Gender is a reference-table row.
type Gender struct {
	ID   string
	Name string
}

// City is a reference-table row.
type City struct {
	ID   string
	Name string
}

// Repository defines persistence operations for the user directory.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// ReferenceRepository provides read access to the gender and city tables.
type ReferenceRepository interface {
	ListGenders(ctx context.Context) ([]Gender, error)
	ListCities(ctx context.Context) ([]City, error)
}
