package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/metrics"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

// CartSource is the slice of the cart store checkout needs: a snapshot to
// price the session and a clear on verified payment.
type CartSource interface {
	Snapshot(ctx context.Context, owner string) (cart.Snapshot, error)
	Clear(ctx context.Context, owner string) error
}

// AuthService establishes the shopper's identity. VerifyOTP returns the user
// id and a bearer token; CheckSession validates a token cached from a prior
// login so returning shoppers skip the OTP steps.
type AuthService interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, name, email, code, existingToken string) (uuid.UUID, string, error)
	CheckSession(ctx context.Context, token string) (uuid.UUID, string, error)
}

// OrderService owns the remote side of checkout: creating the order plus its
// payment intent, and confirming a gateway callback server-side.
type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, snapshot cart.Snapshot, shipping types.Address) (types.PaymentOrder, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, order types.PaymentOrder, confirmation types.PaymentConfirmation) error
}

// Orchestrator drives checkout sessions through the state machine. Each
// session advances one transition at a time; events the current state does not
// allow are rejected, and a session whose remote call is still in flight
// rejects duplicates instead of queueing them.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byOwner  map[string]uuid.UUID

	carts   CartSource
	auth    AuthService
	orders  OrderService
	cfg     config.CheckoutConfig
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

// NewOrchestrator wires the orchestrator; all collaborators except metrics are
// required.
func NewOrchestrator(
	carts CartSource,
	auth AuthService,
	orders OrderService,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
	checkoutMetrics *metrics.CheckoutMetrics,
) (*Orchestrator, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart source is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return &Orchestrator{
		sessions: map[uuid.UUID]*Session{},
		byOwner:  map[string]uuid.UUID{},
		carts:    carts,
		auth:     auth,
		orders:   orders,
		cfg:      cfg,
		logg:     logg,
		metrics:  checkoutMetrics,
		now:      time.Now,
	}, nil
}

// Begin opens a checkout session over a snapshot of the owner's cart. A live
// session for the same owner is returned as-is so a second tab resumes rather
// than forks the flow. With a valid cached token the identity steps are
// skipped entirely.
func (o *Orchestrator) Begin(ctx context.Context, owner, cachedToken string) (Session, error) {
	if strings.TrimSpace(owner) == "" {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}

	o.mu.Lock()
	o.sweepLocked(ctx)
	if id, ok := o.byOwner[owner]; ok {
		if sess, live := o.sessions[id]; live {
			view := sess.view()
			o.mu.Unlock()
			return view, nil
		}
	}
	o.mu.Unlock()

	snapshot, err := o.carts.Snapshot(ctx, owner)
	if err != nil {
		return Session{}, err
	}
	if snapshot.Empty() {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	started := o.now()
	sess := &Session{
		ID:           uuid.New(),
		Owner:        owner,
		State:        StateIdle,
		CartSnapshot: snapshot,
		Payment:      PaymentPending,
		StartedAt:    started,
		Deadline:     started.Add(o.cfg.SessionTTL),
	}

	ctx = o.logg.WithCheckoutSession(ctx, sess.ID.String())

	if cachedToken != "" {
		userID, email, err := o.checkCachedSession(ctx, cachedToken)
		if err == nil {
			sess.Identity = Identity{Email: email, UserID: userID, AuthToken: cachedToken}
			o.setState(ctx, sess, StateAuthenticated)
			o.setState(ctx, sess, StateCollectingShipping)
		}
	}
	if sess.State == StateIdle {
		o.setState(ctx, sess, StateUnauthenticated)
		o.setState(ctx, sess, StateCollectingName)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// Another request may have opened a session for this owner while the
	// snapshot was being taken; the first one wins.
	if id, ok := o.byOwner[owner]; ok {
		if existing, live := o.sessions[id]; live && !o.expiredLocked(existing) {
			return existing.view(), nil
		}
	}
	o.sessions[sess.ID] = sess
	o.byOwner[owner] = sess.ID
	return sess.view(), nil
}

// Submit feeds the shopper's input for the current step into the state
// machine and returns the advanced session.
func (o *Orchestrator) Submit(ctx context.Context, sessionID uuid.UUID, input StepInput) (Session, error) {
	o.mu.Lock()
	sess, err := o.activeLocked(sessionID)
	if err != nil {
		o.mu.Unlock()
		return Session{}, err
	}
	ctx = o.logg.WithCheckoutSession(ctx, sess.ID.String())

	// Each handler below is entered holding the lock and owns releasing it;
	// the ones that make a remote call drop the lock for the call's duration.
	switch sess.State {
	case StateCollectingName:
		return o.submitName(ctx, sess, input)
	case StateCollectingEmail:
		return o.submitEmail(ctx, sess, input)
	case StateAwaitingOtp:
		return o.submitOtp(ctx, sess, input)
	case StateCollectingShipping:
		return o.submitShipping(ctx, sess, input)
	case StateCreatingOrder, StateVerifyingPayment:
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeStateConflict, "a previous submission is still being processed")
	default:
		state := sess.State
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeStateConflict, "no input expected in current step").
			WithDetails(map[string]any{"state": state})
	}
}

// HandleGatewaySuccess processes the hosted payment UI's success callback.
// The callback is untrusted: the session moves to Completed only after the
// order service verifies the payment server-side, and verification runs at
// most once per session.
func (o *Orchestrator) HandleGatewaySuccess(ctx context.Context, sessionID uuid.UUID, confirmation types.PaymentConfirmation) (Session, error) {
	o.mu.Lock()
	sess, err := o.activeLocked(sessionID)
	if err != nil {
		o.mu.Unlock()
		return Session{}, err
	}
	if sess.State != StateAwaitingPayment {
		state := sess.State
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment awaited").
			WithDetails(map[string]any{"state": state})
	}
	order := *sess.RemoteOrder
	userID := sess.Identity.UserID
	ctx = o.logg.WithCheckoutSession(ctx, sess.ID.String())
	o.setState(ctx, sess, StateVerifyingPayment)
	sess.inFlight = true
	o.mu.Unlock()

	verifyErr := o.timedCall(ctx, "verify_payment", func(callCtx context.Context) error {
		return o.orders.VerifyPayment(callCtx, userID, order, confirmation)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	sess.inFlight = false

	if verifyErr != nil {
		sess.Payment = PaymentFailed
		o.failLocked(ctx, sess, ReasonVerificationFailed)
		o.logg.Error(ctx, "payment verification failed", verifyErr)
		return sess.view(), coded(verifyErr, pkgerrors.CodeVerificationFailed, "payment verification failed")
	}

	sess.Payment = PaymentVerified
	o.setState(ctx, sess, StateCompleted)
	o.metrics.IncOutcome("completed")
	o.dropLocked(sess)
	if err := o.carts.Clear(ctx, sess.Owner); err != nil {
		o.logg.Error(ctx, "clearing cart after verified payment", err)
	}
	o.logg.Info(ctx, "checkout completed")
	return sess.view(), nil
}

// HandleGatewayFailure processes a gateway-reported decline or error. No
// server-side verification ran, so the cart stays intact and the shopper may
// start a fresh checkout.
func (o *Orchestrator) HandleGatewayFailure(ctx context.Context, sessionID uuid.UUID, reason string) (Session, error) {
	return o.failFromAwaitingPayment(ctx, sessionID, ReasonPaymentDeclined, reason)
}

// HandleGatewayCancel processes the shopper closing the hosted payment UI
// without completing payment.
func (o *Orchestrator) HandleGatewayCancel(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	return o.failFromAwaitingPayment(ctx, sessionID, ReasonUserCancelled, "")
}

// Abandon drops a session the shopper walked away from. The cart is left
// untouched; only a session stuck at the payment UI records a terminal state.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.sessions[sessionID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if sess.inFlight {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a submission is still being processed")
	}
	ctx = o.logg.WithCheckoutSession(ctx, sess.ID.String())

	if sess.State == StateAwaitingPayment {
		sess.Payment = PaymentFailed
		o.failLocked(ctx, sess, ReasonUserCancelled)
		return nil
	}

	o.dropLocked(sess)
	o.logg.Info(ctx, "checkout abandoned")
	return nil
}

// Get returns a copy of the session.
func (o *Orchestrator) Get(sessionID uuid.UUID) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.sessions[sessionID]
	if !ok {
		return Session{}, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return sess.view(), nil
}

func (o *Orchestrator) submitName(ctx context.Context, sess *Session, input StepInput) (Session, error) {
	defer o.mu.Unlock()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	sess.Identity.Name = name
	o.setState(ctx, sess, StateCollectingEmail)
	return sess.view(), nil
}

func (o *Orchestrator) submitEmail(ctx context.Context, sess *Session, input StepInput) (Session, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	sess.inFlight = true
	o.mu.Unlock()

	sendErr := o.timedCall(ctx, "send_otp", func(callCtx context.Context) error {
		return o.auth.SendOTP(callCtx, email)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	sess.inFlight = false

	if sendErr != nil {
		// Recoverable: the step re-shows and the shopper retries.
		return sess.view(), coded(sendErr, pkgerrors.CodeAuth, "could not send verification code")
	}
	sess.Identity.Email = email
	o.setState(ctx, sess, StateAwaitingOtp)
	return sess.view(), nil
}

func (o *Orchestrator) submitOtp(ctx context.Context, sess *Session, input StepInput) (Session, error) {
	code := strings.TrimSpace(input.OTPCode)
	if code == "" {
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "verification code is required")
	}
	name := sess.Identity.Name
	email := sess.Identity.Email
	existing := sess.Identity.AuthToken
	sess.inFlight = true
	o.mu.Unlock()

	var userID uuid.UUID
	var token string
	verifyErr := o.timedCall(ctx, "verify_otp", func(callCtx context.Context) error {
		var err error
		userID, token, err = o.auth.VerifyOTP(callCtx, name, email, code, existing)
		return err
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	sess.inFlight = false

	if verifyErr != nil {
		// Wrong or expired code: stay on the step for another attempt.
		return sess.view(), coded(verifyErr, pkgerrors.CodeAuth, "verification code rejected")
	}
	sess.Identity.UserID = userID
	sess.Identity.AuthToken = token
	o.setState(ctx, sess, StateAuthenticated)
	o.setState(ctx, sess, StateCollectingShipping)
	return sess.view(), nil
}

func (o *Orchestrator) submitShipping(ctx context.Context, sess *Session, input StepInput) (Session, error) {
	if input.Shipping == nil {
		o.mu.Unlock()
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	shipping := input.Shipping.Normalized()
	if err := shipping.Validate(); err != nil {
		o.mu.Unlock()
		return Session{}, err
	}
	sess.Shipping = &shipping

	// An order already created by this session is reused on retry; the remote
	// call never runs twice for one session.
	if sess.RemoteOrder != nil {
		o.setState(ctx, sess, StateAwaitingPayment)
		view := sess.view()
		o.mu.Unlock()
		return view, nil
	}

	userID := sess.Identity.UserID
	snapshot := sess.CartSnapshot
	o.setState(ctx, sess, StateCreatingOrder)
	sess.inFlight = true
	o.mu.Unlock()

	var order types.PaymentOrder
	createErr := o.timedCall(ctx, "create_order", func(callCtx context.Context) error {
		var err error
		order, err = o.orders.CreateOrder(callCtx, userID, snapshot, shipping)
		return err
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	sess.inFlight = false

	if createErr != nil {
		// Back to the shipping step with the same snapshot; no duplicate order.
		o.setState(ctx, sess, StateCollectingShipping)
		return sess.view(), coded(createErr, pkgerrors.CodeOrderCreation, "order could not be created")
	}
	sess.RemoteOrder = &order
	o.setState(ctx, sess, StateAwaitingPayment)
	o.logg.Info(ctx, "order created, awaiting payment")
	return sess.view(), nil
}

func (o *Orchestrator) failFromAwaitingPayment(ctx context.Context, sessionID uuid.UUID, failure FailReason, detail string) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err := o.activeLocked(sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.State != StateAwaitingPayment {
		state := sess.State
		return Session{}, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment awaited").
			WithDetails(map[string]any{"state": state})
	}
	ctx = o.logg.WithCheckoutSession(ctx, sess.ID.String())
	if detail != "" {
		ctx = o.logg.WithField(ctx, "gateway_reason", detail)
	}
	sess.Payment = PaymentFailed
	o.failLocked(ctx, sess, failure)
	return sess.view(), nil
}

func (o *Orchestrator) checkCachedSession(ctx context.Context, token string) (uuid.UUID, string, error) {
	var userID uuid.UUID
	var email string
	err := o.timedCall(ctx, "check_session", func(callCtx context.Context) error {
		var err error
		userID, email, err = o.auth.CheckSession(callCtx, token)
		return err
	})
	return userID, email, err
}

// activeLocked resolves a session that can still receive events, expiring it
// first when its deadline has passed.
func (o *Orchestrator) activeLocked(sessionID uuid.UUID) (*Session, error) {
	sess, ok := o.sessions[sessionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if sess.inFlight {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a submission is still being processed")
	}
	if o.expiredLocked(sess) {
		if sess.State == StateAwaitingPayment {
			sess.Payment = PaymentFailed
			o.failLocked(context.Background(), sess, ReasonUserCancelled)
		} else {
			o.dropLocked(sess)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired")
	}
	return sess, nil
}

func (o *Orchestrator) expiredLocked(sess *Session) bool {
	return o.now().After(sess.Deadline)
}

// failLocked records the terminal failure and destroys the session; the
// caller's view of the session struct is the last one anyone sees.
func (o *Orchestrator) failLocked(ctx context.Context, sess *Session, failure FailReason) {
	sess.FailReason = failure
	o.setState(ctx, sess, StateFailed)
	o.metrics.IncOutcome(string(failure))
	o.dropLocked(sess)
}

// sweepLocked resolves sessions whose deadline passed with no further event.
// A session stuck at the payment UI records the user-cancelled failure first;
// everything else is simply dropped.
func (o *Orchestrator) sweepLocked(ctx context.Context) {
	for _, sess := range o.sessions {
		if sess.inFlight || !o.expiredLocked(sess) {
			continue
		}
		if sess.State == StateAwaitingPayment {
			sess.Payment = PaymentFailed
			o.failLocked(o.logg.WithCheckoutSession(ctx, sess.ID.String()), sess, ReasonUserCancelled)
			continue
		}
		o.dropLocked(sess)
	}
}

func (o *Orchestrator) dropLocked(sess *Session) {
	delete(o.sessions, sess.ID)
	if o.byOwner[sess.Owner] == sess.ID {
		delete(o.byOwner, sess.Owner)
	}
}

func (o *Orchestrator) setState(ctx context.Context, sess *Session, next State) {
	prev := sess.State
	sess.State = next
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"from": string(prev),
		"to":   string(next),
	}), "checkout transition")
}

func (o *Orchestrator) timedCall(ctx context.Context, operation string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	start := o.now()
	err := call(callCtx)
	o.metrics.ObserveCall(operation, o.now().Sub(start))
	return err
}

// coded keeps an already-coded error as-is and wraps anything else.
func coded(err error, fallback pkgerrors.Code, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(fallback, err, message)
}
