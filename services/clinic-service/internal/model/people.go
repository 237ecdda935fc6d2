package model

import "time"

type Patient struct {
	ID        string
	Name      string
	CPF       string
	BirthDate string // YYYY-MM-DD
	Phone     string
	Email     string
	Address   string
	CreatedAt time.Time
}

type StaffRole string

const (
	RolePhysician    StaffRole = "physician"
	RoleNurse        StaffRole = "nurse"
	RoleReceptionist StaffRole = "receptionist"
	RoleOther        StaffRole = "other"
)

func (r StaffRole) Valid() bool {
	switch r {
	case RolePhysician, RoleNurse, RoleReceptionist, RoleOther:
		return true
	}
	return false
}

type Staff struct {
	ID            string
	Name          string
	CPF           string
	Role          StaffRole
	Specialty     string
	LicenseNumber string
	Phone         string
	Email         string
	CreatedAt     time.Time
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
