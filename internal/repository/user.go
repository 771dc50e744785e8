package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ozsapka/shop-api/internal/domain/user"
)

const (
	listUsersSQL = `SELECT id, name, surname, email, address,
		COALESCE(gender_id, ''), COALESCE(city_id, '')
		FROM users ORDER BY id`

	getUserByIDSQL = `SELECT id, name, surname, email, address,
		COALESCE(gender_id, ''), COALESCE(city_id, '')
		FROM users WHERE id = $1`

	insertUserSQL = `INSERT INTO users (id, name, surname, email, address, gender_id, city_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))`

	updateUserSQL = `UPDATE users
		SET name = $2, surname = $3, email = $4, address = $5,
		    gender_id = NULLIF($6, ''), city_id = NULLIF($7, '')
		WHERE id = $1`

	deleteUserSQL = `DELETE FROM users WHERE id = $1`

	listGendersSQL = `SELECT id, name FROM genders ORDER BY id`
	listCitiesSQL  = `SELECT id, name FROM cities ORDER BY name`
)

var (
	_ user.Repository          = (*UserRepository)(nil)
	_ user.ReferenceRepository = (*UserRepository)(nil)
)

// UserRepository implements the user directory and reference tables backed
// by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// List returns all users ordered by ID.
func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, storageErr(err, "listing users")
	}
	return pgx.CollectRows(rows, scanUser)
}

// GetByID returns a single user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, storageErr(err, "getting user %q", id)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, storageErr(err, "getting user %q", id)
	}
	return &u, nil
}

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, insertUserSQL,
		u.ID, u.Name, u.Surname, u.Email, u.Address, u.GenderID, u.CityID,
	)
	if err != nil {
		return storageErr(err, "creating user %q", u.ID)
	}
	return nil
}

// Update rewrites an existing user record.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	tag, err := r.pool.Exec(ctx, updateUserSQL,
		u.ID, u.Name, u.Surname, u.Email, u.Address, u.GenderID, u.CityID,
	)
	if err != nil {
		return storageErr(err, "updating user %q", u.ID)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Delete removes a user record.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteUserSQL, id)
	if err != nil {
		return storageErr(err, "deleting user %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// ListGenders returns the gender reference table.
func (r *UserRepository) ListGenders(ctx context.Context) ([]user.Gender, error) {
	rows, err := r.pool.Query(ctx, listGendersSQL)
	if err != nil {
		return nil, storageErr(err, "listing genders")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Gender, error) {
		var g user.Gender
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
}

// ListCities returns the city reference table.
func (r *UserRepository) ListCities(ctx context.Context) ([]user.City, error) {
	rows, err := r.pool.Query(ctx, listCitiesSQL)
	if err != nil {
		return nil, storageErr(err, "listing cities")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.City, error) {
		var c user.City
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.Address, &u.GenderID, &u.CityID)
	return u, err
}
