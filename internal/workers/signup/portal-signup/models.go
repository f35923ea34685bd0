package portalsignup

import (
	"league-signup/internal/common/browser"
	"league-signup/internal/common/inbox"
	"league-signup/internal/common/logger"
	"league-signup/pkg/registry"
)

// Registry fields the flow touches, resolved per flow at construction.
const (
	fieldRole            = "role"
	fieldFirstName       = "firstName"
	fieldLastName        = "lastName"
	fieldEmail           = "email"
	fieldPhone           = "phone"
	fieldDateOfBirth     = "dateOfBirth"
	fieldSubmit          = "submit"
	fieldOTP             = "otp"
	fieldOTPSubmit       = "otpSubmit"
	fieldPassword        = "password"
	fieldPasswordConfirm = "passwordConfirm"
	fieldPasswordSubmit  = "passwordSubmit"
	fieldLanding         = "landing"
	fieldFormError       = "formError"
)

var requiredFields = []string{
	fieldRole, fieldFirstName, fieldLastName, fieldEmail, fieldPhone, fieldDateOfBirth,
	fieldSubmit, fieldOTP, fieldOTPSubmit, fieldPassword, fieldPasswordConfirm,
	fieldPasswordSubmit, fieldLanding,
}

// RequiredFields lists the registry fields every flow must resolve.
func RequiredFields() []string {
	return append([]string(nil), requiredFields...)
}

type ServiceDependencies struct {
	Logger    logger.Logger
	Engine    browser.Engine
	Inbox     inbox.Inbox
	Selectors *registry.SelectorRegistry
}

type element struct {
	name  string
	chain []string
}
