package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/devanshkukreja/looms-backend/api/middleware"
	"github.com/devanshkukreja/looms-backend/api/responses"
	"github.com/devanshkukreja/looms-backend/api/validators"
	"github.com/devanshkukreja/looms-backend/internal/checkout"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

type gatewayFailureRequest struct {
	Reason string `json:"reason"`
}

// CheckoutBegin opens a session over a snapshot of the caller's cart. A bearer
// token from a prior login lets the shopper skip the identity steps.
func CheckoutBegin(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerOrReject(w, r, logg)
		if !ok {
			return
		}

		sess, err := orch.Begin(r.Context(), owner, middleware.BearerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sess)
	}
}

// CheckoutGet returns the session's current state.
func CheckoutGet(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		sess, err := orch.Get(sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutSubmit feeds the shopper's input for the current step into the
// session.
func CheckoutSubmit(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		var input checkout.StepInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := orch.Submit(r.Context(), sessionID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutGatewaySuccess processes the hosted payment UI's success callback.
// The payload is untrusted; the session completes only after server-side
// verification.
func CheckoutGatewaySuccess(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		var confirmation types.PaymentConfirmation
		if err := validators.DecodeJSONBody(r, &confirmation); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := orch.HandleGatewaySuccess(r.Context(), sessionID, confirmation)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutGatewayFailure records a gateway-reported decline or error.
func CheckoutGatewayFailure(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		var payload gatewayFailureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := orch.HandleGatewayFailure(r.Context(), sessionID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutGatewayCancel records the shopper closing the hosted payment UI.
func CheckoutGatewayCancel(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		sess, err := orch.HandleGatewayCancel(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutAbandon drops a session the shopper walked away from.
func CheckoutAbandon(orch *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDOrReject(w, r, logg)
		if !ok {
			return
		}

		if err := orch.Abandon(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "abandoned"})
	}
}

func sessionIDOrReject(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "sessionId")
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w,
			pkgerrors.New(pkgerrors.CodeValidation, "session id must be a valid uuid"))
		return uuid.Nil, false
	}
	return sessionID, true
}
