package directory

import (
	"regexp"
	"strings"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

const minPhoneDigits = 10

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func validateCPF(cpf string) error {
	if len(mask.Digits(cpf)) != mask.CPFDigits {
		return invalid("cpf", "must have 11 digits")
	}
	return nil
}

func validatePhone(phone string) error {
	if len(mask.Digits(phone)) < minPhoneDigits {
		return invalid("phone", "must have at least 10 digits")
	}
	return nil
}

func validateEmail(email string) error {
	if email != "" && !emailPattern.MatchString(email) {
		return invalid("email", "is not a valid address")
	}
	return nil
}

func validateISODate(field, date string) error {
	if date == "" {
		return invalid(field, "is required")
	}
	if !mask.ValidISODate(date) {
		return invalid(field, "must be a valid date (DD/MM/YYYY or YYYY-MM-DD)")
	}
	return nil
}

func validateRole(role model.StaffRole, license string) error {
	if !role.Valid() {
		return invalid("role", "must be one of physician, nurse, receptionist, other")
	}
	if role == model.RolePhysician && strings.TrimSpace(license) == "" {
		return invalid("license_number", "is required for physicians")
	}
	return nil
}
