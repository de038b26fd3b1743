package service

import "hotspotportal/internal/models"

// View names the page a request resolves to. The API returns it in place of
// rendering a template.
type View string

const (
	ViewShow           View = "show"
	ViewEdit           View = "edit"
	ViewVerification   View = "verification"
	ViewNoVerification View = "no_verification"
	ViewExpired        View = "expired"
)

// Layout tells the client whether to embed a page fragment or a full page.
type Layout string

const (
	LayoutFull    Layout = "full"
	LayoutPartial Layout = "partial"
)

// VerificationGate picks the view for an account page. Accounts that cannot
// verify themselves and are unverified get no_verification. Other unverified
// accounts get verification unless an operator is acting for them.
func VerificationGate(method models.VerificationMethod, verified, operatorPresent bool) View {
	if !method.SelfVerifiable() && !verified {
		return ViewNoVerification
	}
	if !operatorPresent && !verified {
		return ViewVerification
	}
	return ViewShow
}

type VerificationPage struct {
	View    View         `json:"view"`
	Layout  Layout       `json:"layout"`
	Account *AccountView `json:"account,omitempty"`
}

// Verification resolves the verification page. A nil account means the
// registration expired and housekeeping removed it.
func Verification(a *models.Account, xhr bool) VerificationPage {
	layout := LayoutFull
	if xhr {
		layout = LayoutPartial
	}
	if a == nil {
		return VerificationPage{View: ViewExpired, Layout: layout}
	}
	v := NewAccountView(*a)
	return VerificationPage{View: ViewVerification, Layout: layout, Account: &v}
}
