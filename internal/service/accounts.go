package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hotspotportal/internal/auth"
	"hotspotportal/internal/jobs"
	"hotspotportal/internal/models"
	"hotspotportal/internal/radacct"
	"hotspotportal/internal/store"
)

const defaultState = "Italy"

type AccountView struct {
	ID                 string                    `json:"id"`
	Username           string                    `json:"username"`
	Email              string                    `json:"email"`
	GivenName          string                    `json:"given_name"`
	Surname            string                    `json:"surname"`
	State              string                    `json:"state"`
	MobilePrefix       string                    `json:"mobile_prefix,omitempty"`
	MobileSuffix       string                    `json:"mobile_suffix,omitempty"`
	VerificationMethod models.VerificationMethod `json:"verification_method"`
	Verified           bool                      `json:"verified"`
	VerifiedAt         *time.Time                `json:"verified_at,omitempty"`
	RadiusGroups       []string                  `json:"radius_groups"`
	CreatedAt          time.Time                 `json:"created_at"`
}

func NewAccountView(a models.Account) AccountView {
	groups := a.RadiusGroups
	if groups == nil {
		groups = []string{}
	}
	return AccountView{
		ID:                 a.ID,
		Username:           a.Username,
		Email:              a.Email,
		GivenName:          a.GivenName,
		Surname:            a.Surname,
		State:              a.State,
		MobilePrefix:       a.MobilePrefix,
		MobileSuffix:       a.MobileSuffix,
		VerificationMethod: a.VerificationMethod,
		Verified:           a.Verified,
		VerifiedAt:         a.VerifiedAt,
		RadiusGroups:       groups,
		CreatedAt:          a.CreatedAt,
	}
}

type AccountDefaults struct {
	VerificationMethod models.VerificationMethod `json:"verification_method"`
	State              string                    `json:"state"`
}

type AccountForm struct {
	Defaults            AccountDefaults             `json:"defaults"`
	VerificationMethods []models.VerificationMethod `json:"verification_methods"`
	Countries           []models.Country            `json:"countries"`
	MobilePrefixes      []models.MobilePrefix       `json:"mobile_prefixes"`
}

// NewAccountForm returns the registration defaults with the enabled countries
// and mobile prefixes.
func (s *Service) NewAccountForm(ctx context.Context) (AccountForm, error) {
	countries, err := s.st.ListEnabledCountries(ctx)
	if err != nil {
		return AccountForm{}, fmt.Errorf("list countries: %w", err)
	}
	prefixes, err := s.st.ListEnabledMobilePrefixes(ctx)
	if err != nil {
		return AccountForm{}, fmt.Errorf("list mobile prefixes: %w", err)
	}
	return AccountForm{
		Defaults:            AccountDefaults{VerificationMethod: models.VerifyByMobile, State: defaultState},
		VerificationMethods: models.VerificationMethods,
		Countries:           countries,
		MobilePrefixes:      prefixes,
	}, nil
}

type RegisterInput struct {
	Username             string
	Email                string
	Password             string
	PasswordConfirmation string
	GivenName            string
	Surname              string
	State                string
	MobilePrefix         string
	MobileSuffix         string
	VerificationMethod   models.VerificationMethod
}

// Register creates an account in the default RADIUS group, schedules its
// removal if it stays unverified, and logs it in. Invalid input yields a
// *ValidationError and writes nothing.
func (s *Service) Register(ctx context.Context, in RegisterInput, ip, userAgent string) (string, models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.GivenName = strings.TrimSpace(in.GivenName)
	in.Surname = strings.TrimSpace(in.Surname)
	in.State = strings.TrimSpace(in.State)
	in.MobilePrefix = strings.TrimSpace(in.MobilePrefix)
	in.MobileSuffix = strings.TrimSpace(in.MobileSuffix)

	form, err := s.NewAccountForm(ctx)
	if err != nil {
		return "", models.Account{}, err
	}
	v := &ValidationError{}
	if !validUsername(in.Username) {
		v.add("username", "is invalid")
	} else if taken, err := s.usernameTaken(ctx, in.Username); err != nil {
		return "", models.Account{}, err
	} else if taken {
		v.add("username", "has already been taken")
	}
	if err := s.checkEmail(ctx, v, in.Email, ""); err != nil {
		return "", models.Account{}, err
	}
	s.checkPassword(v, in.Password, in.PasswordConfirmation)
	if in.GivenName == "" {
		v.add("given_name", "can't be blank")
	}
	if in.Surname == "" {
		v.add("surname", "can't be blank")
	}
	if !in.VerificationMethod.Valid() {
		v.add("verification_method", "is not included in the list")
	}
	checkState(v, form, in.State)
	if in.VerificationMethod == models.VerifyByMobile {
		checkMobile(v, form, in.MobilePrefix, in.MobileSuffix)
	}
	if err := v.err(); err != nil {
		return "", models.Account{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", models.Account{}, err
	}
	now := s.now()
	a := models.Account{
		ID:                 uuid.NewString(),
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       hash,
		GivenName:          in.GivenName,
		Surname:            in.Surname,
		State:              in.State,
		MobilePrefix:       in.MobilePrefix,
		MobileSuffix:       in.MobileSuffix,
		VerificationMethod: in.VerificationMethod,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	group := s.cfg.Portal.DefaultRadiusGroup
	expire, expires := s.registrationExpiry(a.VerificationMethod)
	expiry := jobs.RemoveUnverifiedAccount(a.ID, now.Add(expire))
	txJobs, jobsInTx := s.jobs.(jobs.TxEnqueuer)
	var token string
	err = s.st.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.AddAccountToGroup(ctx, a.ID, group); err != nil {
			return fmt.Errorf("join radius group %q: %w", group, err)
		}
		if token, err = s.openSession(ctx, tx, models.PrincipalAccount, a.ID, ip, userAgent); err != nil {
			return err
		}
		if expires && jobsInTx {
			return txJobs.WithStore(tx).Enqueue(ctx, expiry)
		}
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		v.add("username", "has already been taken")
		return "", models.Account{}, v
	}
	if err != nil {
		return "", models.Account{}, fmt.Errorf("register account: %w", err)
	}
	a.RadiusGroups = []string{group}

	if expires && !jobsInTx {
		if err := s.jobs.Enqueue(ctx, expiry); err != nil {
			return "", models.Account{}, err
		}
	}
	s.log.Info(ctx, "account registered", "account_id", a.ID, "username", a.Username, "method", a.VerificationMethod)
	return token, a, nil
}

func (s *Service) registrationExpiry(m models.VerificationMethod) (time.Duration, bool) {
	switch m {
	case models.VerifyByMobile:
		return s.cfg.Portal.MobilePhoneRegistrationExpire, true
	case models.VerifyByCreditCard:
		return s.cfg.Portal.CreditCardRegistrationExpire, true
	}
	return 0, false
}

type EditPage struct {
	View           View                  `json:"view"`
	Account        AccountView           `json:"account"`
	Countries      []models.Country      `json:"countries,omitempty"`
	MobilePrefixes []models.MobilePrefix `json:"mobile_prefixes,omitempty"`
}

func (s *Service) Edit(ctx context.Context, a models.Account, operatorPresent bool) (EditPage, error) {
	page := EditPage{View: VerificationGate(a.VerificationMethod, a.Verified, operatorPresent), Account: NewAccountView(a)}
	if page.View != ViewShow {
		return page, nil
	}
	page.View = ViewEdit
	form, err := s.NewAccountForm(ctx)
	if err != nil {
		return EditPage{}, err
	}
	page.Countries = form.Countries
	page.MobilePrefixes = form.MobilePrefixes
	return page, nil
}

// UpdateInput holds the editable fields. Nil pointers leave a field as is.
type UpdateInput struct {
	Email                *string
	GivenName            *string
	Surname              *string
	State                *string
	MobilePrefix         *string
	MobileSuffix         *string
	Password             *string
	PasswordConfirmation *string
	DisableAccount       bool
}

type UpdateResult struct {
	View     View
	Disabled bool
	Account  models.Account
}

// Update edits a verified account on behalf of its owner. With an operator
// acting, or an unverified account, nothing changes and the verification view
// is returned. Disabling clears the verified flag and revokes every session
// of the account.
func (s *Service) Update(ctx context.Context, a models.Account, operatorPresent bool, in UpdateInput) (UpdateResult, error) {
	if operatorPresent || !a.Verified {
		return UpdateResult{View: ViewVerification, Account: a}, nil
	}
	form, err := s.NewAccountForm(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	v := &ValidationError{}
	next := a
	if in.Email != nil {
		next.Email = strings.ToLower(strings.TrimSpace(*in.Email))
		if err := s.checkEmail(ctx, v, next.Email, a.ID); err != nil {
			return UpdateResult{}, err
		}
	}
	if in.GivenName != nil {
		if next.GivenName = strings.TrimSpace(*in.GivenName); next.GivenName == "" {
			v.add("given_name", "can't be blank")
		}
	}
	if in.Surname != nil {
		if next.Surname = strings.TrimSpace(*in.Surname); next.Surname == "" {
			v.add("surname", "can't be blank")
		}
	}
	if in.State != nil {
		next.State = strings.TrimSpace(*in.State)
		checkState(v, form, next.State)
	}
	if in.MobilePrefix != nil {
		next.MobilePrefix = strings.TrimSpace(*in.MobilePrefix)
	}
	if in.MobileSuffix != nil {
		next.MobileSuffix = strings.TrimSpace(*in.MobileSuffix)
	}
	if next.VerificationMethod == models.VerifyByMobile && (in.MobilePrefix != nil || in.MobileSuffix != nil) {
		checkMobile(v, form, next.MobilePrefix, next.MobileSuffix)
	}
	if in.Password != nil && *in.Password != "" {
		confirmation := ""
		if in.PasswordConfirmation != nil {
			confirmation = *in.PasswordConfirmation
		}
		s.checkPassword(v, *in.Password, confirmation)
		if len(v.Fields) == 0 {
			hash, err := auth.HashPassword(*in.Password)
			if err != nil {
				return UpdateResult{}, err
			}
			next.PasswordHash = hash
		}
	}
	if err := v.err(); err != nil {
		return UpdateResult{}, err
	}

	now := s.now()
	if in.DisableAccount {
		next.Verified = false
		next.VerifiedAt = nil
	}
	next.UpdatedAt = now
	if err := s.st.UpdateAccount(ctx, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			v.add("email", "has already been taken")
			return UpdateResult{}, v
		}
		return UpdateResult{}, fmt.Errorf("update account: %w", err)
	}
	if in.DisableAccount {
		if err := s.st.RevokePrincipalSessions(ctx, models.PrincipalAccount, a.ID, now); err != nil {
			return UpdateResult{}, fmt.Errorf("revoke sessions: %w", err)
		}
		s.log.Info(ctx, "account disabled", "account_id", a.ID)
		return UpdateResult{View: ViewShow, Disabled: true, Account: next}, nil
	}
	return UpdateResult{View: ViewShow, Account: next}, nil
}

// VerifyCreditCard marks the account behind a payment invoice as verified.
func (s *Service) VerifyCreditCard(ctx context.Context, invoice string) error {
	a, err := s.st.GetAccountByID(ctx, strings.TrimSpace(invoice))
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if a.Verified {
		return nil
	}
	if err := s.st.SetAccountVerified(ctx, a.ID, s.now()); err != nil {
		return fmt.Errorf("verify account %s: %w", a.ID, err)
	}
	s.log.Info(ctx, "account verified by credit card", "account_id", a.ID)
	return nil
}

// CreditCardIPN is one payment notification. Has* distinguish an absent
// field from an empty one.
type CreditCardIPN struct {
	Secure     bool
	Secret     string
	HasSecret  bool
	Invoice    string
	HasInvoice bool
}

// HandleCreditCardIPN applies a payment notification. Every failure is logged
// and swallowed; the caller always answers the provider with success.
func (s *Service) HandleCreditCardIPN(ctx context.Context, n CreditCardIPN) {
	if n.Secure && !s.ipnSecretMatches(n) {
		s.log.Warn(ctx, "ipn rejected: bad secret")
		return
	}
	if !n.HasInvoice {
		s.log.Warn(ctx, "ipn ignored: missing invoice", "secure", n.Secure)
		return
	}
	if err := s.VerifyCreditCard(ctx, n.Invoice); err != nil {
		s.log.Error(ctx, "ipn verification failed", "invoice", n.Invoice, "secure", n.Secure, "err", err)
	}
}

func (s *Service) ipnSecretMatches(n CreditCardIPN) bool {
	want := s.cfg.Portal.IPNSharedSecret
	if !n.HasSecret || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(n.Secret), []byte(want)) == 1
}

type AccountingPage struct {
	Items   []radacct.View  `json:"items"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Sort    radacct.SortKey `json:"sort"`
}

// Accountings pages through the account's own RADIUS sessions.
func (s *Service) Accountings(ctx context.Context, a models.Account, sortParam, pageParam string) (AccountingPage, error) {
	res, err := s.radius.ForUser(a.Username).Search(ctx,
		radacct.ResolveSort(sortParam),
		radacct.ParsePage(pageParam),
		s.cfg.Portal.DefaultRadacctResultsPerPage,
	)
	if err != nil {
		return AccountingPage{}, err
	}
	return AccountingPage{
		Items:   radacct.Views(res.Records, s.timeShift()),
		Total:   res.Total,
		Page:    res.Page,
		PerPage: res.PerPage,
		Sort:    res.Sort,
	}, nil
}

func (s *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.st.GetAccountByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) checkEmail(ctx context.Context, v *ValidationError, email, selfID string) error {
	if !validEmail(email) {
		v.add("email", "is invalid")
		return nil
	}
	other, err := s.st.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != selfID {
		v.add("email", "has already been taken")
	}
	return nil
}

func checkState(v *ValidationError, form AccountForm, state string) {
	for _, c := range form.Countries {
		if c.PrintableName == state {
			return
		}
	}
	v.add("state", "is not included in the list")
}

func checkMobile(v *ValidationError, form AccountForm, prefix, suffix string) {
	found := false
	for _, p := range form.MobilePrefixes {
		if p.Prefix == prefix {
			found = true
			break
		}
	}
	if !found {
		v.add("mobile_prefix", "is not included in the list")
	}
	if !validMobileSuffix(suffix) {
		v.add("mobile_suffix", "is invalid")
	}
}
