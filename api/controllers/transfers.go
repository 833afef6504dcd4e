package controllers

import (
	"net/http"
	"strings"

	"github.com/paygrid/paygrid-backend/api/responses"
	"github.com/paygrid/paygrid-backend/api/validators"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/pkg/db/models"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	"github.com/paygrid/paygrid-backend/pkg/logger"
)

type transferReceiverRequest struct {
	Account string `json:"account" validate:"required"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

type transferItemRequest struct {
	TokenID   string                    `json:"token_id" validate:"required"`
	Receivers []transferReceiverRequest `json:"receivers" validate:"required,min=1,max=5,dive"`
}

// The HTTP surface always settles from the caller's own funds; multi-sender
// batches exist only inside the billing engine.
func (t transferItemRequest) toInput(sender string) settlement.TransferInput {
	input := settlement.TransferInput{
		TokenID:     strings.TrimSpace(t.TokenID),
		Sender:      sender,
		PaymentType: enums.PaymentTypeOneTime,
	}
	for _, recv := range t.Receivers {
		input.Receivers = append(input.Receivers, settlement.ReceiverAmount{
			Account: strings.TrimSpace(recv.Account),
			Amount:  recv.Amount,
		})
	}
	return input
}

type transferRequest struct {
	transferItemRequest
	// FeeAccount selects whose fee schedule applies; empty means the
	// type-wide default rate.
	FeeAccount string `json:"fee_account"`
}

// Transfer settles a one-time payment from the caller.
func Transfer(svc *settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Transfer(r.Context(), strings.TrimSpace(payload.FeeAccount), payload.toInput(caller))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type batchTransferRequest struct {
	FeeAccount string                `json:"fee_account"`
	Items      []transferItemRequest `json:"items" validate:"required,min=1,dive"`
}

// BatchTransfer settles several one-time payments from the caller in one call.
func BatchTransfer(svc *settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload batchTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]settlement.TransferInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			inputs = append(inputs, item.toInput(caller))
		}
		results, err := svc.BatchTransfer(r.Context(), strings.TrimSpace(payload.FeeAccount), inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"results": results})
	}
}

type nativeTransferRequest struct {
	Receivers     []transferReceiverRequest `json:"receivers" validate:"required,min=1,max=5,dive"`
	AttachedValue int64                     `json:"attached_value" validate:"gt=0"`
	FeeAccount    string                    `json:"fee_account"`
}

// NativeTransfer settles a native-currency payment from the caller.
func NativeTransfer(svc *settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload nativeTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := settlement.TransferInput{
			TokenID:     models.NativeTokenID,
			Sender:      caller,
			PaymentType: enums.PaymentTypeOneTime,
		}
		for _, recv := range payload.Receivers {
			input.Receivers = append(input.Receivers, settlement.ReceiverAmount{
				Account: strings.TrimSpace(recv.Account),
				Amount:  recv.Amount,
			})
		}

		result, err := svc.NativeTransfer(r.Context(), strings.TrimSpace(payload.FeeAccount), input, payload.AttachedValue)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
