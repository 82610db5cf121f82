package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/elimuconnect/elimu/core"
)

// Roles (canonical form, no authority prefix)
const (
	RoleAdmin   = "ADMIN"
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
	RoleParent  = "PARENT"

	// authorityPrefix namespaces roles on the wire (token claims, stored
	// authorities); it is stripped on the way in and never stored.
	authorityPrefix = "ROLE_"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

	Roles = []Role{
		{Name: "Administrator", Value: RoleAdmin},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent/Guardian", Value: RoleParent},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NormalizeRole reduces a role string to its canonical representation:
// upper-cased, trimmed, authority prefix stripped. It is idempotent.
func NormalizeRole(role string) string {
	role = strings.ToUpper(core.CleanString(role))
	return strings.TrimPrefix(role, authorityPrefix)
}

// Authority returns the namespaced wire form of a role (e.g. "ROLE_ADMIN").
func Authority(role string) string {
	return authorityPrefix + NormalizeRole(role)
}

// ValidRole reports whether role normalizes to a member of the closed role set.
func ValidRole(role string) bool {
	role = NormalizeRole(role)
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"` // canonical form
	IsActive *bool  `json:"is_active"`

	PhoneNumber string `json:"phone_number,omitempty"`

	// teacher attributes
	TSCNumber      string   `json:"tsc_number,omitempty"`
	SubjectsTaught []string `json:"subjects_taught,omitempty"`
	Qualification  string   `json:"qualification,omitempty"`

	// student attributes
	AdmissionNumber string `json:"admission_number,omitempty"`
	ClassName       string `json:"class_name,omitempty"`
	GuardianContact string `json:"guardian_contact,omitempty"`
	County          string `json:"county,omitempty"`

	// parent attributes
	NationalID               string   `json:"national_id,omitempty"`
	ChildrenAdmissionNumbers []string `json:"children_admission_numbers,omitempty"`

	SchoolID string `json:"school_id,omitempty"`

	PasswordHash  []byte    `json:"-"`
	LoginAttempts int       `json:"-"`
	LockedUntil   time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
	LastLogin time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive != nil && *u.IsActive
}

// Locked reports whether the account is under a failed-login lockout.
func (u *User) Locked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && u.LockedUntil.After(now)
}

func (u *User) HasRole(role string) bool {
	return u.Role == NormalizeRole(role)
}

func (u *User) IsAdmin() bool   { return u.HasRole(RoleAdmin) }
func (u *User) IsTeacher() bool { return u.HasRole(RoleTeacher) }
func (u *User) IsStudent() bool { return u.HasRole(RoleStudent) }
func (u *User) IsParent() bool  { return u.HasRole(RoleParent) }

// NewAdmin contains information needed to register an administrator account.
// Admins self-activate with the configured admin code.
type NewAdmin struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	AdminCode       string `json:"admin_code" validate:"required"`
	SchoolID        string `json:"school_id"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (na *NewAdmin) Validate(validate *validator.Validate, svc Service) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)

	if err := validate.Struct(na); err != nil {
		return err
	}
	return svc.CheckUniqueness(na.Email)
}

// NewTeacher contains information needed to register a teacher account.
// The account stays inactive until an administrator approves it.
type NewTeacher struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	PhoneNumber     string   `json:"phone_number"`
	TSCNumber       string   `json:"tsc_number" validate:"required"`
	SchoolID        string   `json:"school_id"`
	SubjectsTaught  []string `json:"subjects_taught"`
	Qualification   string   `json:"qualification"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate, svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.TSCNumber = core.CleanString(nt.TSCNumber)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(nt.Email, UniqueTSCNumber(nt.TSCNumber))
}

// NewStudent contains information needed to register a student account.
type NewStudent struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	AdmissionNumber string `json:"admission_number" validate:"required"`
	SchoolID        string `json:"school_id"`
	ClassName       string `json:"class_name"`
	GuardianContact string `json:"guardian_contact"`
	County          string `json:"county"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ns *NewStudent) Validate(validate *validator.Validate, svc Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.AdmissionNumber = core.CleanString(ns.AdmissionNumber)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ns.Email, UniqueAdmissionNumber(ns.AdmissionNumber))
}

// NewParent contains information needed to register a parent/guardian account.
type NewParent struct {
	Name                     string   `json:"name" validate:"required"`
	Email                    string   `json:"email" validate:"required,email"`
	PhoneNumber              string   `json:"phone_number"`
	NationalID               string   `json:"national_id"`
	ChildrenAdmissionNumbers []string `json:"children_admission_numbers"`
	Password                 string   `json:"password" validate:"required"`
	PasswordConfirm          string   `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (np *NewParent) Validate(validate *validator.Validate, svc Service) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)

	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckUniqueness(np.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role != "" {
		uu.Role = NormalizeRole(uu.Role)
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Email, ExcludeUsers(origUsr))
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if qf.Role != "" {
		qf.Role = NormalizeRole(qf.Role)
	}
}
