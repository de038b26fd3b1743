package models

import "time"

type VerificationMethod string

const (
	VerifyByMobile     VerificationMethod = "mobile"
	VerifyByCreditCard VerificationMethod = "credit_card"
	VerifyByEmail      VerificationMethod = "email"
	VerifyByAdmin      VerificationMethod = "admin"
	VerifyByNone       VerificationMethod = "none"
)

var VerificationMethods = []VerificationMethod{
	VerifyByMobile,
	VerifyByCreditCard,
	VerifyByEmail,
	VerifyByAdmin,
	VerifyByNone,
}

func (m VerificationMethod) Valid() bool {
	for _, v := range VerificationMethods {
		if m == v {
			return true
		}
	}
	return false
}

// SelfVerifiable reports whether the account owner can complete verification
// without an operator.
func (m VerificationMethod) SelfVerifiable() bool {
	return m == VerifyByMobile || m == VerifyByCreditCard
}

type Account struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	GivenName          string
	Surname            string
	State              string
	MobilePrefix       string
	MobileSuffix       string
	VerificationMethod VerificationMethod
	Verified           bool
	VerifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	RadiusGroups       []string
}

type RadiusGroup struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type Country struct {
	ISO           string `json:"iso"`
	PrintableName string `json:"printable_name"`
	Disabled      bool   `json:"-"`
}

type MobilePrefix struct {
	Prefix   string `json:"prefix"`
	Disabled bool   `json:"-"`
}

type Operator struct {
	ID           string
	Login        string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

type PrincipalKind string

const (
	PrincipalAccount  PrincipalKind = "account"
	PrincipalOperator PrincipalKind = "operator"
)

type Session struct {
	ID            string
	PrincipalKind PrincipalKind
	PrincipalID   string
	TokenHash     string
	IPHint        string
	UserAgentHash string
	ExpiresAt     time.Time
	IdleExpiresAt time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time
}

// ScheduledJob is a deferred task handed to the external housekeeping worker.
// (Kind, Key) is unique; re-enqueueing replaces the schedule.
type ScheduledJob struct {
	Key         string
	Kind        string
	Arg         string
	ScheduledAt time.Time
	CreatedAt   time.Time
}
