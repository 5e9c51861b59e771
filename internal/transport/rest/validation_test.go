package rest

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"debtster/internal/domain"
)

func jsonRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func multipartRequest(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(fileData); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestValidateRegisterRequest(t *testing.T) {
	req, err := ValidateRegisterRequest(jsonRequest(t,
		`{"username":"juan","password":"long-enough","full_name":"Juan","role":"debtor"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Username != "juan" || req.Role != "debtor" {
		t.Errorf("got %+v", req)
	}

	cases := []struct {
		name string
		body string
	}{
		{"missing username", `{"password":"long-enough","role":"debtor"}`},
		{"missing password", `{"username":"juan","role":"debtor"}`},
		{"missing role", `{"username":"juan","password":"long-enough"}`},
		{"empty body", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateRegisterRequest(jsonRequest(t, tc.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidateLoginRequest(t *testing.T) {
	req, err := ValidateLoginRequest(jsonRequest(t, `{"username":"juan","password":"pw"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Username != "juan" || req.Password != "pw" {
		t.Errorf("got %+v", req)
	}

	if _, err := ValidateLoginRequest(jsonRequest(t, `{"username":"juan"}`)); err == nil {
		t.Error("expected an error for a missing password")
	}
}

func TestValidateDebtRequest_JSON(t *testing.T) {
	// amounts arrive as numbers and as strings
	for _, body := range []string{
		`{"creditor_username":"maria","type":"money","amount":1500.75}`,
		`{"creditor_username":"maria","type":"money","amount":"1500.75"}`,
	} {
		req, err := ValidateDebtRequest(jsonRequest(t, body))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", body, err)
		}
		if req.Amount.StringFixed(2) != "1500.75" {
			t.Errorf("amount = %s", req.Amount)
		}
		if req.CreditorUsername != "maria" {
			t.Errorf("creditor = %q", req.CreditorUsername)
		}
	}

	if _, err := ValidateDebtRequest(jsonRequest(t,
		`{"creditor_username":"maria","type":"money"}`)); err == nil {
		t.Error("expected an error for a missing amount")
	}
}

func TestValidateDebtRequest_Multipart(t *testing.T) {
	r := multipartRequest(t, map[string]string{
		"creditor_username": "maria",
		"type":              "product",
		"amount":            "250",
		"product_name":      "rice cooker",
	}, "debt_proof", "proof.jpg", []byte("jpeg-bytes"))

	req, err := ValidateDebtRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Type != "product" {
		t.Errorf("type = %q", req.Type)
	}
	if req.ProductName == nil || *req.ProductName != "rice cooker" {
		t.Errorf("product name = %v", req.ProductName)
	}

	proof, err := ReadProofFile(r, "debt_proof", maxDebtProofSize, false)
	if err != nil {
		t.Fatalf("unexpected proof error: %v", err)
	}
	if proof == nil || proof.FileName != "proof.jpg" || proof.ContentType != "image/jpeg" {
		t.Errorf("proof = %+v", proof)
	}
}

func TestValidateSubmitPaymentRequest_Cash(t *testing.T) {
	r := multipartRequest(t, map[string]string{
		"method": "cash",
		"amount": "400",
	}, "payment_proof", "receipt.png", []byte("png-bytes"))

	req, err := ValidateSubmitPaymentRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != domain.PaymentMethodCash {
		t.Errorf("method = %q", req.Method)
	}
	if req.Amount.String() != "400" {
		t.Errorf("amount = %s", req.Amount)
	}
}

func TestValidateSubmitPaymentRequest_Gcash(t *testing.T) {
	req, err := ValidateSubmitPaymentRequest(jsonRequest(t,
		`{"method":"gcash","amount":"600","reference_number":"09171234567"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != domain.PaymentMethodGcash {
		t.Errorf("method = %q", req.Method)
	}
	if req.ReferenceNumber == nil || *req.ReferenceNumber != "09171234567" {
		t.Errorf("reference = %v", req.ReferenceNumber)
	}
}

func TestValidateSubmitPaymentRequest_GcashConfirm(t *testing.T) {
	// the confirm step carries no amount, it lives in the stored intent
	req, err := ValidateSubmitPaymentRequest(jsonRequest(t,
		`{"method":"gcash","confirm":true,"checkout_id":"b2f1c0aa-0000-0000-0000-000000000000"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Confirm || req.CheckoutID == nil {
		t.Errorf("got %+v", req)
	}
	if !req.Amount.IsZero() {
		t.Errorf("amount should be zero, got %s", req.Amount)
	}
}

func TestValidateSubmitPaymentRequest_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown method", `{"method":"paypal","amount":"100"}`},
		{"missing amount", `{"method":"gcash"}`},
		{"bad amount", `{"method":"gcash","amount":"lots"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateSubmitPaymentRequest(jsonRequest(t, tc.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReadProofFile_Rules(t *testing.T) {
	t.Run("extension not allowed", func(t *testing.T) {
		r := multipartRequest(t, nil, "proof", "malware.exe", []byte("mz"))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, err := ReadProofFile(r, "proof", maxPaymentProofSize, true); err == nil {
			t.Error("expected an error for .exe")
		}
	})

	t.Run("too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 64)
		r := multipartRequest(t, nil, "proof", "huge.jpg", big)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, err := ReadProofFile(r, "proof", 10, true); err == nil {
			t.Error("expected an error for an oversized file")
		}
	})

	t.Run("missing but optional", func(t *testing.T) {
		r := multipartRequest(t, map[string]string{"method": "cash"}, "", "", nil)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse: %v", err)
		}
		proof, err := ReadProofFile(r, "proof", maxPaymentProofSize, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof != nil {
			t.Errorf("expected no proof, got %+v", proof)
		}
	})

	t.Run("missing but required", func(t *testing.T) {
		r := multipartRequest(t, map[string]string{"method": "cash"}, "", "", nil)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, err := ReadProofFile(r, "proof", maxPaymentProofSize, true); err == nil {
			t.Error("expected an error for a missing required file")
		}
	})
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?status=active&limit=25&include_rejected=true&date_from=2026-01-15&bad_date=yesterday", nil)

	if s := queryString(r, "status"); s == nil || *s != "active" {
		t.Errorf("queryString = %v", s)
	}
	if s := queryString(r, "missing"); s != nil {
		t.Errorf("queryString for missing key = %v", s)
	}
	if n := queryInt64(r, "limit", 50); n != 25 {
		t.Errorf("queryInt64 = %d", n)
	}
	if n := queryInt64(r, "missing", 50); n != 50 {
		t.Errorf("queryInt64 default = %d", n)
	}
	if !queryBool(r, "include_rejected") {
		t.Error("queryBool should be true")
	}
	if queryBool(r, "missing") {
		t.Error("queryBool for missing key should be false")
	}

	d, err := queryDate(r, "date_from")
	if err != nil || d == nil || d.Format("2006-01-02") != "2026-01-15" {
		t.Errorf("queryDate = %v, %v", d, err)
	}
	if _, err := queryDate(r, "bad_date"); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestParseDecimalField(t *testing.T) {
	d, err := parseDecimalField(" 99.90 ", "amount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.StringFixed(2) != "99.90" {
		t.Errorf("got %s", d.StringFixed(2))
	}

	_, err = parseDecimalField("ninety", "amount")
	if err == nil {
		t.Fatal("expected an error")
	}
	// handlers rely on the concrete type to map it to a 400
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("error type = %T", err)
	}
}
