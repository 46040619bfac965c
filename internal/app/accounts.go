package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
)

// RegistrationForm is the student self-registration payload.
type RegistrationForm struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (f *RegistrationForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Name, validation.Required.Error("full name is required")),
		validation.Field(&f.Username,
			validation.Required.Error("username is required"),
			validation.Length(4, 0).Error("username must be at least 4 characters")),
		validation.Field(&f.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("please enter a valid email")),
		validation.Field(&f.Password,
			validation.Required.Error("password is required"),
			validation.Length(6, 0).Error("password must be at least 6 characters")),
		validation.Field(&f.ConfirmPassword,
			validation.Required.When(f.Password != "").Error("passwords do not match"),
			validation.In(f.Password).Error("passwords do not match")),
	)
}

// Accounts handles registration and login. Passwords are compared as stored.
type Accounts struct {
	store   Store
	builtin []domain.User
	log     *zap.Logger
	now     func() time.Time
}

func NewAccounts(store Store, builtin []domain.User, log *zap.Logger) *Accounts {
	return &Accounts{store: store, builtin: builtin, log: log, now: time.Now}
}

// Register appends a new student account.
func (a *Accounts) Register(ctx context.Context, form RegistrationForm) (domain.User, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)

	var errs domain.ValidationErrors
	if err := form.Validate(); err != nil {
		errs = fromOzzo(err)
	}

	user := domain.User{
		Username:  form.Username,
		Password:  form.Password,
		Name:      form.Name,
		Email:     form.Email,
		Role:      domain.RoleStudent,
		CreatedAt: a.now().UTC(),
	}
	err := update(ctx, a.store, UsersKey, func(users *[]domain.User) error {
		if a.taken(*users, form.Username) {
			errs.Add("username", "username already taken")
		}
		if len(errs) > 0 {
			return errs
		}
		*users = append(*users, user)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	a.log.Info("student registered", zap.String("username", user.Username))
	return publicUser(user), nil
}

func (a *Accounts) taken(users []domain.User, username string) bool {
	if username == "" {
		return false
	}
	for _, u := range users {
		if u.Username == username {
			return true
		}
	}
	for _, u := range a.builtin {
		if u.Username == username {
			return true
		}
	}
	return false
}

// Login checks registered students first, then the built-in accounts.
// Registered accounts always log in as students.
func (a *Accounts) Login(ctx context.Context, username, password string) (domain.User, error) {
	var users []domain.User
	if _, err := loadJSON(ctx, a.store, UsersKey, &users); err != nil {
		return domain.User{}, err
	}
	for _, u := range users {
		if u.Username == username && u.Password == password {
			u.Role = domain.RoleStudent
			return publicUser(u), nil
		}
	}
	for _, u := range a.builtin {
		if u.Username == username && u.Password == password {
			return publicUser(u), nil
		}
	}
	return domain.User{}, domain.ErrInvalidCredentials
}

func publicUser(u domain.User) domain.User {
	u.Password = ""
	return u
}

// fromOzzo flattens ozzo-validation errors into field errors, sorted by field.
func fromOzzo(err error) domain.ValidationErrors {
	var out domain.ValidationErrors
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out.Add("", err.Error())
		return out
	}
	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		out.Add(field, verrs[field].Error())
	}
	return out
}
