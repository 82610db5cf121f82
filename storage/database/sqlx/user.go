package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuconnect/elimu/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

// userRow mirrors the users table.
type userRow struct {
	ID                       string         `db:"id"`
	Name                     string         `db:"name"`
	Email                    string         `db:"email"`
	Role                     string         `db:"role"`
	IsActive                 null.Bool      `db:"is_active"`
	PhoneNumber              null.String    `db:"phone_number"`
	TSCNumber                null.String    `db:"tsc_number"`
	SubjectsTaught           pq.StringArray `db:"subjects_taught"`
	Qualification            null.String    `db:"qualification"`
	AdmissionNumber          null.String    `db:"admission_number"`
	ClassName                null.String    `db:"class_name"`
	GuardianContact          null.String    `db:"guardian_contact"`
	County                   null.String    `db:"county"`
	NationalID               null.String    `db:"national_id"`
	ChildrenAdmissionNumbers pq.StringArray `db:"children_admission_numbers"`
	SchoolID                 null.String    `db:"school_id"`
	PasswordHash             null.Bytes     `db:"password_hash"`
	LoginAttempts            int            `db:"login_attempts"`
	LockedUntil              null.Time      `db:"locked_until"`
	CreatedAt                null.Time      `db:"created_at"`
	UpdatedAt                null.Time      `db:"updated_at"`
	LastLogin                null.Time      `db:"last_login"`
}

func (repo userRepository) row(usr user.User) userRow {
	return userRow{
		ID:                       usr.ID,
		Name:                     usr.Name,
		Email:                    usr.Email,
		Role:                     usr.Role,
		IsActive:                 null.BoolFromPtr(usr.IsActive),
		PhoneNumber:              null.NewString(usr.PhoneNumber, usr.PhoneNumber != ""),
		TSCNumber:                null.NewString(usr.TSCNumber, usr.TSCNumber != ""),
		SubjectsTaught:           usr.SubjectsTaught,
		Qualification:            null.NewString(usr.Qualification, usr.Qualification != ""),
		AdmissionNumber:          null.NewString(usr.AdmissionNumber, usr.AdmissionNumber != ""),
		ClassName:                null.NewString(usr.ClassName, usr.ClassName != ""),
		GuardianContact:          null.NewString(usr.GuardianContact, usr.GuardianContact != ""),
		County:                   null.NewString(usr.County, usr.County != ""),
		NationalID:               null.NewString(usr.NationalID, usr.NationalID != ""),
		ChildrenAdmissionNumbers: usr.ChildrenAdmissionNumbers,
		SchoolID:                 null.NewString(usr.SchoolID, usr.SchoolID != ""),
		PasswordHash:             null.BytesFrom(usr.PasswordHash),
		LoginAttempts:            usr.LoginAttempts,
		LockedUntil:              null.NewTime(usr.LockedUntil.UTC(), !usr.LockedUntil.IsZero()),
		CreatedAt:                null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:                null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:                null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unrow(row userRow) user.User {
	return user.User{
		ID:                       row.ID,
		Name:                     row.Name,
		Email:                    row.Email,
		Role:                     row.Role,
		IsActive:                 row.IsActive.Ptr(),
		PhoneNumber:              row.PhoneNumber.String,
		TSCNumber:                row.TSCNumber.String,
		SubjectsTaught:           row.SubjectsTaught,
		Qualification:            row.Qualification.String,
		AdmissionNumber:          row.AdmissionNumber.String,
		ClassName:                row.ClassName.String,
		GuardianContact:          row.GuardianContact.String,
		County:                   row.County.String,
		NationalID:               row.NationalID.String,
		ChildrenAdmissionNumbers: row.ChildrenAdmissionNumbers,
		SchoolID:                 row.SchoolID.String,
		PasswordHash:             row.PasswordHash.Bytes,
		LoginAttempts:            row.LoginAttempts,
		LockedUntil:              row.LockedUntil.Time,
		CreatedAt:                row.CreatedAt.Time,
		UpdatedAt:                row.UpdatedAt.Time,
		LastLogin:                row.LastLogin.Time,
	}
}

func (repo userRepository) unrowSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unrow(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, check user.UniqueCheck) error {
	exclIDs := make(pq.StringArray, 0, len(check.ExcludedUsers))
	for _, usr := range check.ExcludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	exists := func(column, value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		var found bool
		err := repo.db.GetContext(ctx, &found,
			"SELECT EXISTS (SELECT 1 FROM users WHERE "+column+" = $1 AND NOT (id = ANY($2)))",
			value, exclIDs,
		)
		return found, err
	}

	if found, err := exists("email", check.Email); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	} else if found {
		return user.ErrEmailExists
	}
	if found, err := exists("tsc_number", check.TSCNumber); err != nil {
		return errors.Wrap(err, "checking TSC number uniqueness")
	} else if found {
		return user.ErrTSCNumberExists
	}
	if found, err := exists("admission_number", check.AdmissionNumber); err != nil {
		return errors.Wrap(err, "checking admission number uniqueness")
	} else if found {
		return user.ErrAdmissionNumberExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.row(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, role, is_active, phone_number, tsc_number, subjects_taught,
		                   qualification, admission_number, class_name, guardian_contact, county, national_id,
		                   children_admission_numbers, school_id, password_hash, login_attempts, locked_until,
		                   created_at, updated_at, last_login)
		VALUES (:id, :name, :email, :role, :is_active, :phone_number, :tsc_number, :subjects_taught,
		        :qualification, :admission_number, :class_name, :guardian_contact, :county, :national_id,
		        :children_admission_numbers, :school_id, :password_hash, :login_attempts, :locked_until,
		        :created_at, :updated_at, :last_login)`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unrow(row), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		column string
		value  string
	)
	switch {
	case filter.ID != "":
		column, value = "id", filter.ID
	case filter.Email != "":
		column, value = "email", filter.Email
	case filter.TSCNumber != "":
		column, value = "tsc_number", filter.TSCNumber
	case filter.AdmissionNumber != "":
		column, value = "admission_number", filter.AdmissionNumber
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM users WHERE "+column+" = $1", value); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by "+column)
	}
	return repo.unrow(row), nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := "SELECT * FROM users"
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(name ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if filter.Role != "" {
		conds = append(conds, "role = "+arg(filter.Role))
	}
	if filter.IsActive != nil {
		conds = append(conds, "COALESCE(is_active, FALSE) = "+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at"

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unrowSlice(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// only save set fields; merge into the stored row first
	orig, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	if err != nil {
		return user.User{}, err
	}
	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Role != "" {
		orig.Role = usr.Role
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.SetActive(*isActive)
	}
	orig.LoginAttempts = usr.LoginAttempts
	orig.LockedUntil = usr.LockedUntil
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		orig.UpdatedAt = usr.UpdatedAt
	}

	row := repo.row(orig)
	if _, err = repo.db.NamedExecContext(ctx, `
		UPDATE users
		SET name = :name, email = :email, role = :role, is_active = :is_active,
		    password_hash = :password_hash, login_attempts = :login_attempts, locked_until = :locked_until,
		    updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		row,
	); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.unrow(row), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	updated, err := repo.UpdateUser(ctx, usr, usr.IsActive)
	if errors.Cause(err) == user.ErrNotFound {
		return repo.CreateUser(ctx, usr)
	}
	return updated, err
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
