// Package domain defines the core business entities for Absher Pay.
// All monetary amounts are Saudi Riyal (SAR) by convention and carry no
// currency field. Bill and transaction timestamps are epoch milliseconds,
// matching the wire format of the realtime database.
package domain

import "time"

// ============================================================
// Bills
// ============================================================

// BilingualLabel carries the Arabic and English display names of a
// catalog entity, denormalized onto records at creation time.
type BilingualLabel struct {
	Ar string `json:"ar"`
	En string `json:"en"`
}

// PenaltyInfo is the late-payment surcharge attached to an overdue bill.
// TotalWithPenalty must always equal the bill amount plus LateFee.
type PenaltyInfo struct {
	LateFee          float64 `json:"lateFee"`
	DaysOverdue      int     `json:"daysOverdue"`
	TotalWithPenalty float64 `json:"totalWithPenalty"`
}

// Bill is a single payable government-service obligation.
//
// The persisted Status is one of "unpaid", "scheduled" or "paid".
// Overdue-ness is never persisted; it is always derived from DueDate via
// IsBillOverdue, so a stale status field cannot disagree with the clock.
type Bill struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	WalletID       string            `json:"walletId"`
	IsBusiness     bool              `json:"isBusiness"`
	ServiceType    string            `json:"serviceType"`
	ServiceSubType string            `json:"serviceSubType,omitempty"`
	ServiceName    BilingualLabel    `json:"serviceName"`
	MinistryName   BilingualLabel    `json:"ministryName"`
	Amount         float64           `json:"amount"`
	DueDate        int64             `json:"dueDate"`
	IssueDate      int64             `json:"issueDate,omitempty"`
	PaymentDate    int64             `json:"paymentDate,omitempty"`
	Status         string            `json:"status"`
	PenaltyInfo    *PenaltyInfo      `json:"penaltyInfo,omitempty"`
	ReferenceNo    string            `json:"referenceNumber,omitempty"`
	AdditionalInfo map[string]string `json:"additionalInfo,omitempty"`
	PaidWith       string            `json:"paidWith,omitempty"`
	PaymentLock    string            `json:"paymentLock,omitempty"`
}

// Persisted bill statuses. "overdue" and "upcoming" are display states
// derived at read time, never written to the store.
const (
	BillStatusUnpaid    = "unpaid"
	BillStatusScheduled = "scheduled"
	BillStatusPaid      = "paid"
)

// ScheduledBill is a future-dated commitment to auto-pay a specific bill.
type ScheduledBill struct {
	ID              string  `json:"id"`
	BillID          string  `json:"billId"`
	UserID          string  `json:"userId"`
	WalletID        string  `json:"walletId"`
	ScheduledDate   int64   `json:"scheduledDate"`
	ScheduledAmount float64 `json:"scheduledAmount"`
	Status          string  `json:"status"` // scheduled | executed | cancelled
	CreatedAt       int64   `json:"createdAt"`
}

// ============================================================
// Wallets & Ledger
// ============================================================

// Wallet is a user's personal or business balance container.
type Wallet struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	IsBusiness bool    `json:"isBusiness"`
	Balance    float64 `json:"balance"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// Transaction is an immutable ledger entry. Once written it is never mutated.
type Transaction struct {
	ID             string       `json:"id"`
	WalletID       string       `json:"walletId"`
	UserID         string       `json:"userId"`
	Type           string       `json:"type"` // top_up | payment | transfer_in | transfer_out | refund
	Amount         float64      `json:"amount"`
	BalanceBefore  float64      `json:"balanceBefore"`
	BalanceAfter   float64      `json:"balanceAfter"`
	Timestamp      int64        `json:"timestamp"`
	Status         string       `json:"status"`
	ReferenceNo    string       `json:"referenceNumber,omitempty"`
	ServiceType    string       `json:"serviceType,omitempty"`
	ServiceSubType string       `json:"serviceSubType,omitempty"`
	Ministry       string       `json:"ministry,omitempty"`
	Description    string       `json:"description,omitempty"`
	PenaltyInfo    *PenaltyInfo `json:"penaltyInfo,omitempty"`
}

// ============================================================
// Reports
// ============================================================

// ReportCategory is one serviceType bucket inside a report.
type ReportCategory struct {
	Name        string  `json:"name"`
	ServiceType string  `json:"serviceType"`
	Amount      float64 `json:"amount"`
	Percentage  float64 `json:"percentage"`
	Count       int     `json:"count"`
}

// Report is a derived, read-only aggregate of expense transactions over a
// date range. Reports are never authoritative; they can be regenerated from
// the ledger at any time.
type Report struct {
	ID              string           `json:"id"`
	WalletID        string           `json:"walletId"`
	Type            string           `json:"type"` // monthly | quarterly | yearly | custom
	Title           string           `json:"title,omitempty"`
	FromDate        int64            `json:"fromDate"`
	ToDate          int64            `json:"toDate"`
	TotalExpense    float64          `json:"totalExpense"`
	OperationsCount int              `json:"operationsCount"`
	Categories      []ReportCategory `json:"categories"`
	GeneratedAt     int64            `json:"generatedAt"`
}

// ============================================================
// Bank Accounts
// ============================================================

// BankAccount is a user-linked external bank account identified by IBAN.
// At most one account per user may have IsSelected set.
type BankAccount struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BankID       string `json:"bankId"`
	BankName     string `json:"bankName"`
	IBAN         string `json:"iban"`
	AccountOwner string `json:"accountOwner"`
	IsSelected   bool   `json:"isSelected"`
	IsVerified   bool   `json:"isVerified"`
	CreatedAt    int64  `json:"createdAt"`
}

// ============================================================
// Outbox (payment bookkeeping reconciliation)
// ============================================================

// OutboxEntry is a durable pending bill-bookkeeping record, written when a
// mark-as-paid write fails after the wallet has already been debited.
// The reconciler drains these with bounded retries.
type OutboxEntry struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	BillID      string       `json:"billId"`
	TxID        string       `json:"transactionId"`
	PenaltyInfo *PenaltyInfo `json:"penaltyInfo,omitempty"`
	Attempts    int          `json:"attempts"`
	CreatedAt   int64        `json:"createdAt"`
	LastError   string       `json:"lastError,omitempty"`
}

// ============================================================
// Auth / Users
// ============================================================

// User is the account holder as stored for authentication.
type User struct {
	ID             string     `json:"id"`
	NationalID     string     `json:"nationalId"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"passwordHash"`
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
}

// RefreshToken is a stored (hashed) refresh token for session rotation.
type RefreshToken struct {
	Hash      string    `json:"hash"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
}

// OTPChallenge is an issued one-time payment-confirmation code, stored
// bcrypt-hashed. Single use, expires after its TTL.
type OTPChallenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CodeHash  string    `json:"codeHash"`
	Purpose   string    `json:"purpose"` // payment
	ExpiresAt time.Time `json:"expiresAt"`
	Consumed  bool      `json:"consumed"`
}

// ============================================================
// API request/response shapes
// ============================================================

// BillFilters narrows a user's bill listing. Zero values mean "no filter".
type BillFilters struct {
	WalletID   string
	IsBusiness *bool
	Status     string // effective status: unpaid | upcoming | overdue | paid | scheduled
	FromDate   int64
	ToDate     int64
}

// CreateBillRequest creates a bill against the catalog.
type CreateBillRequest struct {
	WalletID       string            `json:"walletId"`
	IsBusiness     bool              `json:"isBusiness"`
	ServiceType    string            `json:"serviceType"`
	ServiceSubType string            `json:"serviceSubType,omitempty"`
	Amount         float64           `json:"amount,omitempty"` // 0 = use catalog fee
	DueDate        int64             `json:"dueDate"`
	ReferenceNo    string            `json:"referenceNumber,omitempty"`
	AdditionalInfo map[string]string `json:"additionalInfo,omitempty"`
}

// BulkPaymentRequest charges a set of bills against one wallet in a single
// ledger transaction.
type BulkPaymentRequest struct {
	WalletID       string   `json:"walletId"`
	BillIDs        []string `json:"billIds"`
	OTPCode        string   `json:"otpCode"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

// BulkPaymentResult reports the outcome of a bulk payment. Money movement is
// authoritative: FailedBillIDs lists bills whose bookkeeping write failed and
// was handed to the outbox, not bills that were not charged.
type BulkPaymentResult struct {
	TransactionID  string   `json:"transactionId"`
	TotalCharged   float64  `json:"totalCharged"`
	NewBalance     float64  `json:"newBalance"`
	PaidBillIDs    []string `json:"paidBillIds"`
	FailedBillIDs  []string `json:"failedBillIds,omitempty"`
	PartialFailure bool     `json:"partialFailure"`
	Timestamp      int64    `json:"timestamp"`
}

// BulkPreviewResponse is the review-step view of a bulk payment.
type BulkPreviewResponse struct {
	BillIDs     []string `json:"billIds"`
	Total       float64  `json:"total"`
	TotalLabel  string   `json:"totalLabel"`
	BillCount   int      `json:"billCount"`
	PreviewedAt int64    `json:"previewedAt"`
}

// ScheduleBillRequest schedules an auto-payment for a bill.
type ScheduleBillRequest struct {
	BillID        string `json:"billId"`
	WalletID      string `json:"walletId"`
	ScheduledDate int64  `json:"scheduledDate"`
}

// CustomReportRequest asks for an aggregate over an explicit window.
type CustomReportRequest struct {
	FromDate int64  `json:"fromDate"`
	ToDate   int64  `json:"toDate"`
	Title    string `json:"title,omitempty"`
}

// CreateBankAccountRequest links an external bank account.
type CreateBankAccountRequest struct {
	BankID       string `json:"bankId"`
	BankName     string `json:"bankName"`
	IBAN         string `json:"iban"`
	AccountOwner string `json:"accountOwner"`
}

// LoginRequest authenticates by national ID and password.
type LoginRequest struct {
	NationalID string `json:"nationalId"`
	Password   string `json:"password"`
}

// LoginResponse carries the issued token pair.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// OTPRequestResponse acknowledges an issued payment OTP.
type OTPRequestResponse struct {
	ChallengeID string `json:"challengeId"`
	ExpiresIn   int    `json:"expiresIn"`
	MaskedPhone string `json:"maskedPhone"`
}

// ============================================================
// Assistant
// ============================================================

// AssistantRequest is the chat query from the client.
type AssistantRequest struct {
	WalletID string `json:"walletId"`
	Message  string `json:"message"`
}

// AssistantResponse is the validated reply from the completion API plus
// request accounting.
type AssistantResponse struct {
	Reply            string `json:"reply"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	LatencyMs        int64  `json:"latencyMs"`
}

// CompletionRequest is the wire shape sent to the external text-generation API.
type CompletionRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	Query        string `json:"query"`
}

// CompletionResponse is the wire shape returned by the text-generation API.
type CompletionResponse struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
}

// ============================================================
// Dev Tools & Events
// ============================================================

// GenerateBillsRequest drives the synthetic bill generator (dev tools only).
type GenerateBillsRequest struct {
	UserID       string   `json:"userId"`
	WalletID     string   `json:"walletId"`
	IsBusiness   bool     `json:"isBusiness"`
	Count        int      `json:"count"`
	StatusMix    []string `json:"statusMix,omitempty"`
	ServiceTypes []string `json:"serviceTypes,omitempty"`
}

// PaymentEvent is published to the message broker after a successful charge.
type PaymentEvent struct {
	TransactionID string   `json:"transactionId"`
	UserID        string   `json:"userId"`
	WalletID      string   `json:"walletId"`
	Amount        float64  `json:"amount"`
	BillIDs       []string `json:"billIds"`
	FailedBillIDs []string `json:"failedBillIds,omitempty"`
	Timestamp     int64    `json:"timestamp"`
}
