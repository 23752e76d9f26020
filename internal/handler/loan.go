package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/response"
)

// LoanService is the ledger behaviour the HTTP layer depends on.
type LoanService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error)
	ApplyPayment(ctx context.Context, loanID uuid.UUID, request *domain.RepaymentRequest) (*domain.ReceivedRepayment, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error)
	GetOutstanding(ctx context.Context, loanID uuid.UUID) (*domain.OutstandingResponse, error)
	ListReceipts(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewLoanHandler(service LoanService, logger *zap.Logger) *LoanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// CreateLoan handles POST /api/v1/loans. processed_at may be a date
// (YYYY-MM-DD) or an RFC3339 timestamp; currency_code defaults to DEFAULT_CURRENCY.
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	loan, schedule, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Created(w, domain.CreateLoanResponse{
		Loan:     loan,
		Schedule: schedule,
	})
}

// GetLoan handles GET /api/v1/loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, loan)
}

// GetSchedule handles GET /api/v1/loans/{loanId}/schedule
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, domain.ScheduleResponse{
		LoanID:   loanID,
		Schedule: schedule,
	})
}

// GetOutstanding handles GET /api/v1/loans/{loanId}/outstanding
func (h *LoanHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	outstanding, err := h.service.GetOutstanding(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, outstanding)
}

// ApplyPayment handles POST /api/v1/loans/{loanId}/repayments
func (h *LoanHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var request domain.RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	receipt, err := h.service.ApplyPayment(r.Context(), loanID, &request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Created(w, receipt)
}

// ListReceipts handles GET /api/v1/loans/{loanId}/repayments
func (h *LoanHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	receipts, err := h.service.ListReceipts(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, domain.ReceiptsResponse{
		LoanID:   loanID,
		Receipts: receipts,
	})
}

func parseLoanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	loanID, err := uuid.Parse(mux.Vars(r)["loanId"])
	if err != nil {
		response.BadRequest(w, "Invalid loan ID", err)
		return uuid.Nil, false
	}
	return loanID, true
}

// writeError maps a service error to its HTTP status. Internal failures are
// logged and answered without details.
func (h *LoanHandler) writeError(w http.ResponseWriter, err error) {
	code := customError.CodeOf(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
		response.ErrorWithCode(w, status, code, "Internal server error")
		return
	}

	var be *customError.BusinessError
	message := err.Error()
	if errors.As(err, &be) {
		message = be.Message
	}
	response.ErrorWithCode(w, status, code, message)
}

func statusFor(code string) int {
	switch code {
	case customError.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case customError.ErrCodeLoanNotFound, customError.ErrCodeNoDueInstallment:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
