package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/user"
)

func TestPasswordPolicy(t *testing.T) {
	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	svc, _ := setup(t)

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "valid", pwd: "G00d!pass"},
		{name: "too short", pwd: "S3c!p", wantTag: "pwdminlen"},
		{name: "whitespace", pwd: "S3cret! pass", wantTag: "pwdnospace"},
		{name: "all numeric", pwd: "12345678", wantTag: "pwdnotallnum"},
		{name: "no special char", pwd: "S3cretpass", wantTag: "pwdcplx"},
		{name: "no digit", pwd: "Secret!pass", wantTag: "pwdcplx"},
		{name: "no uppercase", pwd: "s3cret!pass", wantTag: "pwdcplx"},
		{name: "similar to email", pwd: "Jane@example.com1", wantTag: "pwdtoosim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := user.NewAdmin{
				Name:            "Jane Admin",
				Email:           "jane@example.com",
				AdminCode:       "OnlyMe@2025",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := data.Validate(validate, svc)
			if tt.wantTag == "" {
				if err != nil {
					t.Errorf("Validate(): %v", err)
				}
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				t.Fatalf("want validator.ValidationErrors; got %v", err)
			}
			var found bool
			for _, vErr := range vErrs {
				if vErr.Tag() == tt.wantTag {
					found = true
				}
			}
			if !found {
				t.Errorf("want tag %q in %v", tt.wantTag, vErrs)
			}
		})
	}
}

func TestRoleTag(t *testing.T) {
	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	type roleHolder struct {
		Role string `json:"role" validate:"omitempty,role"`
	}
	for _, role := range []string{"", "ADMIN", "role_teacher"} {
		if err := validate.Struct(roleHolder{Role: role}); err != nil {
			t.Errorf("role %q: %v", role, err)
		}
	}
	if err := validate.Struct(roleHolder{Role: "WIZARD"}); err == nil {
		t.Error("role WIZARD: want error")
	}
}
