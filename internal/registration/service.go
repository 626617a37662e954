package registration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/edu-api/edu_auth/internal/identity"
	"github.com/edu-api/edu_auth/internal/metrics"
)

// Flow labels used for OTP metrics.
const (
	flowLogin    = "login"
	flowRegister = "register"
)

// OTPIssuer generates and delivers a one-time code.
type OTPIssuer interface {
	Issue(ctx context.Context, phone string) (string, error)
}

// TokenIssuer signs session credentials for a completed identity.
type TokenIssuer interface {
	GenerateTokens(user identity.Identity) (identity.TokenPair, error)
}

// Service drives phone onboarding and OTP login. Every operation runs its
// read-check-write sequence inside one repository transaction; OTP delivery
// happens before that transaction opens so a failed delivery commits nothing.
type Service struct {
	repo    identity.Repository
	otp     OTPIssuer
	tokens  TokenIssuer
	metrics *metrics.Recorder
	logger  *slog.Logger
	newID   func() string
}

// NewService wires the state machine to its collaborators.
func NewService(repo identity.Repository, otp OTPIssuer, tokens TokenIssuer, rec *metrics.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		otp:     otp,
		tokens:  tokens,
		metrics: rec,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// OTPResult answers login and send-otp.
type OTPResult struct {
	RequiresOTP bool          `json:"requiresOtp"`
	Message     string        `json:"message"`
	Step        identity.Step `json:"step"`
}

// LoginResult answers login OTP verification. User and Tokens are set only
// once onboarding is complete; otherwise Step names what is pending.
type LoginResult struct {
	Message string              `json:"message"`
	Step    identity.Step       `json:"step,omitempty"`
	User    *identity.Public    `json:"user,omitempty"`
	Tokens  *identity.TokenPair `json:"tokens,omitempty"`
}

// StepResult answers an onboarding step.
type StepResult struct {
	Message string        `json:"message"`
	Step    identity.Step `json:"step"`
}

// CompletionResult answers the final onboarding step.
type CompletionResult struct {
	Message string             `json:"message"`
	User    identity.Public    `json:"user"`
	Tokens  identity.TokenPair `json:"tokens"`
}

// PhoneStatus answers a registration lookup.
type PhoneStatus struct {
	Registered bool          `json:"registered"`
	Step       identity.Step `json:"step,omitempty"`
}

// IdentityRef addresses an identity by id, or by phone when id is empty.
type IdentityRef struct {
	ID    string
	Phone string
}

// Login sends a fresh OTP, creating the identity on first contact. An
// existing identity keeps its step and loses its verified flag.
func (s *Service) Login(ctx context.Context, phone string) (res OTPResult, err error) {
	defer s.observe("login", &err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return OTPResult{}, err
	}
	code, err := s.issue(ctx, phone, flowLogin)
	if err != nil {
		return OTPResult{}, err
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		current, created, err := s.storeCode(ctx, tx, phone, code)
		if err != nil {
			return err
		}
		res = OTPResult{RequiresOTP: true, Step: current.Step}
		if created {
			res.Message = "OTP sent. Please verify to continue registration."
		} else {
			res.Message = fmt.Sprintf("OTP sent to your phone. Pending step: %s", current.Step.Name())
		}
		return nil
	})
	if err != nil {
		return OTPResult{}, err
	}
	return res, nil
}

// VerifyLoginOTP checks code against the last issued OTP. A completed
// identity gets a token pair; anything else learns its pending step.
func (s *Service) VerifyLoginOTP(ctx context.Context, phone, code string) (res LoginResult, err error) {
	defer s.observe("verify-login-otp", &err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return LoginResult{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return LoginResult{}, fmt.Errorf("%w: code is required", identity.ErrInvalidInput)
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		user, err := s.checkCode(ctx, tx, phone, code)
		if err != nil {
			return err
		}
		user.IsVerified = true
		if err := tx.Update(ctx, user); err != nil {
			return err
		}

		if !user.Complete() {
			res = LoginResult{
				Message: fmt.Sprintf("OTP verified. Pending step: %s", user.Step.Name()),
				Step:    user.Step,
			}
			return nil
		}
		pair, err := s.tokens.GenerateTokens(user)
		if err != nil {
			return err
		}
		public := user.Public()
		res = LoginResult{Message: "Login successful.", User: &public, Tokens: &pair}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}
	if res.Tokens != nil {
		s.metrics.TokensIssued("login")
	}
	return res, nil
}

// SendOTP issues a registration OTP. Completed identities are refused
// before any code is sent.
func (s *Service) SendOTP(ctx context.Context, phone string) (res OTPResult, err error) {
	defer s.observe("send-otp", &err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return OTPResult{}, err
	}
	existing, err := s.repo.FindByPhone(ctx, phone)
	switch {
	case err == nil && existing.Complete():
		return OTPResult{}, identity.ErrAlreadyRegistered
	case err != nil && !errors.Is(err, identity.ErrNotFound):
		return OTPResult{}, err
	}

	code, err := s.issue(ctx, phone, flowRegister)
	if err != nil {
		return OTPResult{}, err
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		current, err := tx.FindByPhone(ctx, phone)
		if err == nil && current.Complete() {
			return identity.ErrAlreadyRegistered
		}
		if err != nil && !errors.Is(err, identity.ErrNotFound) {
			return err
		}

		current, created, err := s.storeCode(ctx, tx, phone, code)
		if err != nil {
			return err
		}
		res = OTPResult{RequiresOTP: true, Step: current.Step, Message: "OTP resent."}
		if created {
			res.Message = "OTP sent successfully for new registration."
		}
		return nil
	})
	if err != nil {
		return OTPResult{}, err
	}
	return res, nil
}

// VerifyOTP confirms the registration OTP and moves the identity to name capture.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (res StepResult, err error) {
	defer s.observe("verify-otp", &err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return StepResult{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return StepResult{}, fmt.Errorf("%w: code is required", identity.ErrInvalidInput)
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		user, err := s.checkCode(ctx, tx, phone, code)
		if err != nil {
			return err
		}
		next, err := identity.Advance(user.Step, identity.OpVerifyOTP)
		if err != nil {
			return err
		}
		user.IsVerified = true
		user.Step = next
		if err := tx.Update(ctx, user); err != nil {
			return err
		}
		res = StepResult{Message: "OTP verified, proceed to set name.", Step: next}
		return nil
	})
	if err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// SetName stores the display names and moves the identity to role selection.
func (s *Service) SetName(ctx context.Context, phone, username, lastname string) (res StepResult, err error) {
	defer s.observe("set-name", &err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return StepResult{}, err
	}
	username = strings.TrimSpace(username)
	lastname = strings.TrimSpace(lastname)
	if username == "" || lastname == "" {
		return StepResult{}, fmt.Errorf("%w: username and lastname are required", identity.ErrInvalidInput)
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		user, err := tx.FindByPhone(ctx, phone)
		if err != nil {
			return err
		}
		next, err := identity.Advance(user.Step, identity.OpSetName)
		if err != nil {
			return err
		}
		user.Username = username
		user.Lastname = lastname
		user.Step = next
		if err := tx.Update(ctx, user); err != nil {
			return err
		}
		res = StepResult{Message: "Name saved, proceed to set role.", Step: next}
		return nil
	})
	if err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// SetRole assigns the role, completes onboarding and signs the first token
// pair. The admin count is read inside the transaction that writes the role.
func (s *Service) SetRole(ctx context.Context, ref IdentityRef, role string) (res CompletionResult, err error) {
	defer s.observe("set-role", &err)

	requested, err := identity.ParseRole(role)
	if err != nil {
		return CompletionResult{}, err
	}
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Phone = strings.TrimSpace(ref.Phone)
	if ref.ID == "" && ref.Phone == "" {
		return CompletionResult{}, fmt.Errorf("%w: userId or phone is required", identity.ErrInvalidInput)
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx identity.Repository) error {
		user, err := lookup(ctx, tx, ref)
		if err != nil {
			return err
		}
		next, err := identity.Advance(user.Step, identity.OpSetRole)
		if err != nil {
			return err
		}

		admins := 0
		if requested == identity.RoleAdmin {
			if admins, err = tx.CountByRole(ctx, identity.RoleAdmin); err != nil {
				return err
			}
		}
		if err := identity.CheckRoleChange(user.Role, requested, admins); err != nil {
			return err
		}

		user.Role = requested
		user.Step = next
		if err := tx.Update(ctx, user); err != nil {
			return err
		}
		pair, err := s.tokens.GenerateTokens(user)
		if err != nil {
			return err
		}
		res = CompletionResult{Message: "Role set and registration complete.", User: user.Public(), Tokens: pair}
		return nil
	})
	if err != nil {
		return CompletionResult{}, err
	}

	s.metrics.TokensIssued("set-role")
	s.logger.InfoContext(ctx, "registration complete", "user_id", res.User.ID, "role", string(res.User.Role))
	return res, nil
}

// CheckPhone reports whether phone has an identity and at which step.
func (s *Service) CheckPhone(ctx context.Context, phone string) (PhoneStatus, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return PhoneStatus{}, err
	}
	user, err := s.repo.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return PhoneStatus{Registered: false}, nil
	}
	if err != nil {
		return PhoneStatus{}, err
	}
	return PhoneStatus{Registered: true, Step: user.Step}, nil
}

func (s *Service) issue(ctx context.Context, phone, flow string) (string, error) {
	code, err := s.otp.Issue(ctx, phone)
	if err != nil {
		s.metrics.OTPDeliveryFailed(flow)
		return "", err
	}
	s.metrics.OTPIssued(flow)
	return code, nil
}

// storeCode records code on the identity for phone, creating it at the
// first step when absent.
func (s *Service) storeCode(ctx context.Context, tx identity.Repository, phone, code string) (identity.Identity, bool, error) {
	user, err := tx.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		user = identity.New(s.newID(), phone, code)
		if err := tx.Create(ctx, user); err != nil {
			return identity.Identity{}, false, err
		}
		s.logger.InfoContext(ctx, "identity created", "user_id", user.ID, "phone", phone)
		return user, true, nil
	}
	if err != nil {
		return identity.Identity{}, false, err
	}

	user.Code = code
	user.IsVerified = false
	if err := tx.Update(ctx, user); err != nil {
		return identity.Identity{}, false, err
	}
	return user, false, nil
}

// checkCode loads the identity for phone and compares code with the stored
// one. An unknown phone is reported the same way as a wrong code.
func (s *Service) checkCode(ctx context.Context, tx identity.Repository, phone, code string) (identity.Identity, error) {
	user, err := tx.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	if err != nil {
		return identity.Identity{}, err
	}
	if user.Code == "" || subtle.ConstantTimeCompare([]byte(user.Code), []byte(code)) != 1 {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return user, nil
}

func (s *Service) observe(op string, errp *error) {
	err := *errp
	switch {
	case err == nil:
		s.metrics.Operation(op, metrics.OutcomeOK)
	case isClientError(err):
		s.metrics.Operation(op, metrics.OutcomeRejected)
	default:
		s.metrics.Operation(op, metrics.OutcomeError)
		s.logger.Error("registration operation failed", "operation", op, "error", err)
	}
}

func lookup(ctx context.Context, tx identity.Repository, ref IdentityRef) (identity.Identity, error) {
	if ref.ID != "" {
		return tx.FindByID(ctx, ref.ID)
	}
	return tx.FindByPhone(ctx, ref.Phone)
}

func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: phone is required", identity.ErrInvalidInput)
	}
	return phone, nil
}
