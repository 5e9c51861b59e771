package rest

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"debtster/internal/domain"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func toStringPtr(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return &t, nil
	case float64:
		s := strconv.FormatInt(int64(t), 10)
		return &s, nil
	default:
		return nil, &ValidationError{Message: "invalid type for string field"}
	}
}

func toInt64Ptr(v interface{}) (*int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		i := int64(t)
		return &i, nil
	case string:
		if t == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &i, nil
	default:
		return nil, &ValidationError{Message: "invalid type for int field"}
	}
}

func toDatePtr(v interface{}) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse("2006-01-02", t)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, &ValidationError{Message: "invalid type for date field"}
	}
}

// toDecimalPtr accepts JSON numbers and strings; amounts arrive both ways.
func toDecimalPtr(v interface{}) (*decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		d := decimal.NewFromFloat(t)
		return &d, nil
	case string:
		if t == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(t)
		if err != nil {
			return nil, err
		}
		return &d, nil
	default:
		return nil, &ValidationError{Message: "invalid type for amount field"}
	}
}

func parseDecimalField(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: field, Message: "must be a decimal number"}
	}
	return d, nil
}

type RegisterRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Email    *string `json:"email"`
	Role     string  `json:"role"`
}

func ValidateRegisterRequest(r *http.Request) (*RegisterRequest, error) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, &ValidationError{Field: "username", Message: "username is required"}
	}
	if req.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}
	if req.Role == "" {
		return nil, &ValidationError{Field: "role", Message: "role is required"}
	}
	return &req, nil
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func ValidateLoginRequest(r *http.Request) (*LoginRequest, error) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.Username == "" || req.Password == "" {
		return nil, &ValidationError{Field: "username", Message: "username and password are required"}
	}
	return &req, nil
}

type DebtRequest struct {
	CreditorUsername string
	Type             string
	Amount           decimal.Decimal
	ProductName      *string
	Description      *string
}

type rawDebtRequest struct {
	CreditorUsername string      `json:"creditor_username"`
	Type             string      `json:"type"`
	Amount           interface{} `json:"amount"`
	ProductName      interface{} `json:"product_name"`
	Description      interface{} `json:"description"`
}

func validateDebtBody(raw rawDebtRequest) (*DebtRequest, error) {
	amount, err := toDecimalPtr(raw.Amount)
	if err != nil || amount == nil {
		return nil, &ValidationError{Field: "amount", Message: "amount is required and must be a decimal number"}
	}

	productName, err := toStringPtr(raw.ProductName)
	if err != nil {
		return nil, &ValidationError{Field: "product_name", Message: "product_name must be a string"}
	}
	description, err := toStringPtr(raw.Description)
	if err != nil {
		return nil, &ValidationError{Field: "description", Message: "description must be a string"}
	}

	return &DebtRequest{
		CreditorUsername: strings.TrimSpace(raw.CreditorUsername),
		Type:             raw.Type,
		Amount:           *amount,
		ProductName:      productName,
		Description:      description,
	}, nil
}

// ValidateDebtRequest reads a debt create/edit body, either JSON or the
// multipart form that carries the optional proof file.
func ValidateDebtRequest(r *http.Request) (*DebtRequest, error) {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxDebtProofSize + 1<<20); err != nil {
			return nil, &ValidationError{Message: "invalid multipart form"}
		}
		raw := rawDebtRequest{
			CreditorUsername: r.FormValue("creditor_username"),
			Type:             r.FormValue("type"),
		}
		if v := r.FormValue("amount"); v != "" {
			raw.Amount = v
		}
		if v := r.FormValue("product_name"); v != "" {
			raw.ProductName = v
		}
		if v := r.FormValue("description"); v != "" {
			raw.Description = v
		}
		return validateDebtBody(raw)
	}

	var raw rawDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	return validateDebtBody(raw)
}

type SubmitPaymentRequest struct {
	Method          domain.PaymentMethod
	Amount          decimal.Decimal
	ReferenceNumber *string
	CheckoutID      *string
	Confirm         bool
}

type rawSubmitPaymentRequest struct {
	Method          string      `json:"method"`
	Amount          interface{} `json:"amount"`
	ReferenceNumber interface{} `json:"reference_number"`
	CheckoutID      interface{} `json:"checkout_id"`
	Confirm         bool        `json:"confirm"`
}

// ValidateSubmitPaymentRequest reads a payment submission: JSON for gcash,
// multipart (with the proof file) for cash.
func ValidateSubmitPaymentRequest(r *http.Request) (*SubmitPaymentRequest, error) {
	var raw rawSubmitPaymentRequest

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxPaymentProofSize + 1<<20); err != nil {
			return nil, &ValidationError{Message: "invalid multipart form"}
		}
		raw.Method = r.FormValue("method")
		if v := r.FormValue("amount"); v != "" {
			raw.Amount = v
		}
		if v := r.FormValue("reference_number"); v != "" {
			raw.ReferenceNumber = v
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
	}

	method := domain.PaymentMethod(raw.Method)
	if !method.Valid() {
		return nil, &ValidationError{Field: "method", Message: "method must be cash or gcash"}
	}

	checkoutID, err := toStringPtr(raw.CheckoutID)
	if err != nil {
		return nil, &ValidationError{Field: "checkout_id", Message: "checkout_id must be a string"}
	}

	req := SubmitPaymentRequest{
		Method:     method,
		CheckoutID: checkoutID,
		Confirm:    raw.Confirm,
	}

	// The gcash confirm step reuses the amount stored in the intent.
	if req.Confirm && checkoutID != nil {
		return &req, nil
	}

	amount, err := toDecimalPtr(raw.Amount)
	if err != nil || amount == nil {
		return nil, &ValidationError{Field: "amount", Message: "amount is required and must be a decimal number"}
	}
	req.Amount = *amount

	ref, err := toStringPtr(raw.ReferenceNumber)
	if err != nil {
		return nil, &ValidationError{Field: "reference_number", Message: "reference_number must be a string"}
	}
	req.ReferenceNumber = ref

	return &req, nil
}

const (
	maxDebtProofSize    = 10 << 20 // 10 MB
	maxPaymentProofSize = 5 << 20  // 5 MB
)

var allowedProofExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

type UploadedProof struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ReadProofFile pulls one uploaded proof out of an already-parsed multipart
// form and enforces the type and size rules.
func ReadProofFile(r *http.Request, field string, maxSize int64, required bool) (*UploadedProof, error) {
	if r.MultipartForm == nil {
		if required {
			return nil, &ValidationError{Field: field, Message: "file is required"}
		}
		return nil, nil
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if required {
			return nil, &ValidationError{Field: field, Message: "file is required"}
		}
		return nil, nil
	}
	defer file.Close()

	return readProof(file, header, field, maxSize)
}

func readProof(file multipart.File, header *multipart.FileHeader, field string, maxSize int64) (*UploadedProof, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedProofExtensions[ext]
	if !ok {
		return nil, &ValidationError{Field: field, Message: "file must be an image or a PDF"}
	}

	if header.Size > maxSize {
		return nil, &ValidationError{Field: field, Message: "file is too large"}
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, &ValidationError{Field: field, Message: "failed to read file"}
	}
	if int64(len(data)) > maxSize {
		return nil, &ValidationError{Field: field, Message: "file is too large"}
	}

	return &UploadedProof{
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// query helpers

func queryString(r *http.Request, key string) *string {
	if v := r.URL.Query().Get(key); v != "" {
		return &v
	}
	return nil
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, &ValidationError{Field: key, Message: "must be YYYY-MM-DD"}
	}
	return &parsed, nil
}
