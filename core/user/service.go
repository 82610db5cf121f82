package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = time.Hour
)

var (
	// errors
	ErrNotFound              = errors.New("user not found")
	ErrEmailExists           = errors.New("a user with this email already exists")
	ErrTSCNumberExists       = errors.New("a teacher with this TSC number already exists")
	ErrAdmissionNumberExists = errors.New("a student with this admission number already exists")
	ErrInvalidAdminCode      = errors.New("invalid admin code")
)

type (
	// GetFilter narrows a single-user lookup; set exactly one field.
	GetFilter struct {
		ID              string
		Email           string
		TSCNumber       string
		AdmissionNumber string
	}

	// UniqueCheck gathers the uniqueness constraints to verify before a write.
	UniqueCheck struct {
		Email           string
		TSCNumber       string
		AdmissionNumber string
		ExcludedUsers   []User
	}

	UniqueOption func(*UniqueCheck)

	Repository interface {
		CheckUniqueness(ctx context.Context, check UniqueCheck) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		RegisterAdmin(ctx context.Context, na NewAdmin) (User, error)
		RegisterTeacher(ctx context.Context, nt NewTeacher) (User, error)
		RegisterStudent(ctx context.Context, ns NewStudent) (User, error)
		RegisterParent(ctx context.Context, np NewParent) (User, error)
		CheckUniqueness(email string, opts ...UniqueOption) error
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Filter(ctx context.Context, filter *QueryFilter) ([]User, error)
		Pending(ctx context.Context) ([]User, error)
		Approve(ctx context.Context, id string) (User, error)
		Reject(ctx context.Context, id, reason string) error
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RecordLogin(ctx context.Context, usr User) (User, error)
		RecordLoginFailure(ctx context.Context, usr User) (User, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		log     core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, log core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		log:     log,
		conf:    conf,
	}
}

func UniqueTSCNumber(n string) UniqueOption {
	return func(c *UniqueCheck) { c.TSCNumber = n }
}

func UniqueAdmissionNumber(n string) UniqueOption {
	return func(c *UniqueCheck) { c.AdmissionNumber = n }
}

func ExcludeUsers(users ...User) UniqueOption {
	return func(c *UniqueCheck) { c.ExcludedUsers = users }
}

func (svc *service) CheckUniqueness(email string, opts ...UniqueOption) error {
	check := UniqueCheck{Email: email}
	for _, opt := range opts {
		opt(&check)
	}
	if err := svc.repo.CheckUniqueness(context.Background(), check); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrTSCNumberExists:
			field = "tsc_number"
		case ErrAdmissionNumberExists:
			field = "admission_number"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) RegisterAdmin(ctx context.Context, na NewAdmin) (User, error) {
	if na.AdminCode != svc.conf.AdminCode {
		return User{}, core.NewValidationError(ErrInvalidAdminCode,
			core.FieldError{Field: "admin_code", Error: ErrInvalidAdminCode.Error()})
	}

	usr := newUser(na.Name, na.Email, RoleAdmin)
	usr.SchoolID = na.SchoolID
	usr.SetActive(true) // admins self-activate with the admin code
	if err := usr.SetPassword(na.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

func (svc *service) RegisterTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	usr := newUser(nt.Name, nt.Email, RoleTeacher)
	usr.PhoneNumber = nt.PhoneNumber
	usr.TSCNumber = nt.TSCNumber
	usr.SchoolID = nt.SchoolID
	usr.SubjectsTaught = nt.SubjectsTaught
	usr.Qualification = nt.Qualification
	if err := usr.SetPassword(nt.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendPendingApprovalMail(usr)
	return usr, nil
}

func (svc *service) RegisterStudent(ctx context.Context, ns NewStudent) (User, error) {
	usr := newUser(ns.Name, ns.Email, RoleStudent)
	usr.AdmissionNumber = ns.AdmissionNumber
	usr.SchoolID = ns.SchoolID
	usr.ClassName = ns.ClassName
	usr.GuardianContact = ns.GuardianContact
	usr.County = ns.County
	if err := usr.SetPassword(ns.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendPendingApprovalMail(usr)
	return usr, nil
}

func (svc *service) RegisterParent(ctx context.Context, np NewParent) (User, error) {
	usr := newUser(np.Name, np.Email, RoleParent)
	usr.PhoneNumber = np.PhoneNumber
	usr.NationalID = np.NationalID
	usr.ChildrenAdmissionNumbers = np.ChildrenAdmissionNumbers
	if err := usr.SetPassword(np.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendPendingApprovalMail(usr)
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Filter(ctx context.Context, filter *QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.FilterUsers(ctx, *filter)
}

func (svc *service) Pending(ctx context.Context) ([]User, error) {
	inactive := false
	return svc.repo.FilterUsers(ctx, QueryFilter{IsActive: &inactive})
}

// Approve activates a pending account and notifies its owner.
func (svc *service) Approve(ctx context.Context, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	usr.UpdatedAt = time.Now().UTC()

	active := true
	usr, err = svc.repo.UpdateUser(ctx, usr, &active)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.sendApprovalMail(usr)
	return usr, nil
}

// Reject deletes a pending account; the reason only feeds the notification.
func (svc *service) Reject(ctx context.Context, id, reason string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteUsersByID(ctx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	svc.sendRejectionMail(usr, reason)
	return nil
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Email:     uu.Email,
		Role:      uu.Role,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// RecordLogin resets failure tracking and stamps LastLogin.
func (svc *service) RecordLogin(ctx context.Context, usr User) (User, error) {
	usr.LoginAttempts = 0
	usr.LockedUntil = time.Time{}
	usr.LastLogin = time.Now().UTC()
	usr.UpdatedAt = usr.LastLogin
	return svc.repo.UpdateUser(ctx, usr, nil)
}

// RecordLoginFailure bumps the failure counter; the account locks for an hour
// once maxLoginAttempts consecutive failures accumulate.
func (svc *service) RecordLoginFailure(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	usr.LoginAttempts++
	if usr.LoginAttempts >= maxLoginAttempts {
		usr.LockedUntil = now.Add(lockoutDuration)
		svc.log.Warn(fmt.Sprintf("account locked after %d failed login attempts", usr.LoginAttempts), usr)
	}
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func newUser(name, email, role string) User {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(false)
	return usr
}

// mailers; delivery is concurrent and best-effort per core.EmailService

func (svc *service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Welcome",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour administrator account is ready. Sign in at %s.",
			usr.Name, svc.conf.FrontendBaseURL,
		),
	})
}

func (svc *service) sendPendingApprovalMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Registration received",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour registration was received and is awaiting approval by an administrator. "+
				"You will be notified once your account is activated.",
			usr.Name,
		),
	})
}

func (svc *service) sendApprovalMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Account approved",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour account has been approved. Sign in at %s.",
			usr.Name, svc.conf.FrontendBaseURL,
		),
	})
}

func (svc *service) sendRejectionMail(usr User, reason string) {
	body := fmt.Sprintf("Hello %s,\n\nYour registration was not approved.", usr.Name)
	if reason != "" {
		body += "\nReason: " + reason
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Registration rejected",
		BodyStr: body,
	})
}
