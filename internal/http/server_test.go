package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"invoiced/internal/auth"
	"invoiced/internal/blob"
	"invoiced/internal/core"
	"invoiced/internal/mail"
	"invoiced/internal/metrics"
	"invoiced/internal/services"
	"invoiced/internal/storage"
)

const (
	tokenOne = "token-one"
	tokenTwo = "token-two"
)

type fakeQueue struct {
	published int
}

func (q *fakeQueue) PublishExtractionJob(ctx context.Context, invoiceID, fileID string) error {
	q.published++
	return nil
}

type fakeMailer struct {
	messages []mail.Message
	err      error
}

func (f *fakeMailer) Send(msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type serverFixture struct {
	ts     *httptest.Server
	queue  *fakeQueue
	mailer *fakeMailer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	queue := &fakeQueue{}
	mailer := &fakeMailer{}
	factory := func(ctx context.Context, account core.EmailAccount) (mail.Sender, error) {
		return mailer, nil
	}

	srv := NewServer(Options{
		Verifier: auth.StaticVerifier{tokenOne: "user-1", tokenTwo: "user-2"},
	}, repo,
		services.NewInvoiceService(repo, blobs, queue),
		mail.NewSendService(repo, blobs, factory),
		blobs,
		metrics.New("api"))

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})

	return &serverFixture{ts: ts, queue: queue, mailer: mailer}
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func (f *serverFixture) createClient(t *testing.T, token string, payload clientPayload) clientResponse {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/clients", token, payload)
	requireStatus(t, resp, http.StatusCreated)
	return decodeBody[clientResponse](t, resp)
}

func (f *serverFixture) createInvoice(t *testing.T, token string, payload invoicePayload) invoiceResponse {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/invoices", token, payload)
	requireStatus(t, resp, http.StatusCreated)
	return decodeBody[invoiceResponse](t, resp)
}

func (f *serverFixture) upload(t *testing.T, token, invoiceID, fileName string, content []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("document", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/invoices/"+invoiceID+"/files", &buf)
	if err != nil {
		t.Fatalf("build upload request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestAuthRequired(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"unknown token", "bogus", http.StatusUnauthorized},
		{"valid token", tokenOne, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, "/api/clients", tt.token, nil)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHealthEndpointsOpen(t *testing.T) {
	f := newServerFixture(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := f.do(t, http.MethodGet, path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestClientLifecycle(t *testing.T) {
	f := newServerFixture(t)

	created := f.createClient(t, tokenOne, clientPayload{
		Name:  "Acme Ltd",
		Email: "billing@acme.example",
		CC:    []string{"cfo@acme.example"},
	})
	if created.Currency != core.CurrencyEUR {
		t.Errorf("currency defaulted to %q, want EUR", created.Currency)
	}

	resp := f.do(t, http.MethodPut, "/api/clients/"+created.ID, tokenOne, clientPayload{
		Name:     "Acme Limited",
		Currency: core.CurrencyGBP,
		Email:    "billing@acme.example",
	})
	requireStatus(t, resp, http.StatusOK)
	updated := decodeBody[clientResponse](t, resp)
	if updated.Name != "Acme Limited" || updated.Currency != core.CurrencyGBP {
		t.Errorf("update not applied: %+v", updated)
	}

	// Other users cannot see it.
	resp = f.do(t, http.MethodGet, "/api/clients/"+created.ID, tokenTwo, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user get = %d, want 404", resp.StatusCode)
	}

	resp = f.do(t, http.MethodDelete, "/api/clients/"+created.ID, tokenOne, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", resp.StatusCode)
	}
}

func TestCreateClientValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name    string
		payload clientPayload
	}{
		{"empty name", clientPayload{Email: "a@b.example"}},
		{"bad currency", clientPayload{Name: "X", Currency: "USD"}},
		{"bad email", clientPayload{Name: "X", Email: "not-an-address"}},
		{"bad cc", clientPayload{Name: "X", CC: []string{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/clients", tokenOne, tt.payload)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme"})

	created := f.createInvoice(t, tokenOne, invoicePayload{
		ClientID:    client.ID,
		AmountCents: 150000,
		Year:        2025,
		Month:       6,
	})
	if created.ExtractionStatus != storage.ExtractionNone {
		t.Errorf("extraction status = %q, want %q", created.ExtractionStatus, storage.ExtractionNone)
	}
	if created.SentToClient || created.SentToAccountant || created.PaymentReceived {
		t.Error("new invoice should have all flags clear")
	}

	eur := int64(172500)
	resp := f.do(t, http.MethodPut, "/api/invoices/"+created.ID, tokenOne, invoicePayload{
		ClientID:       client.ID,
		AmountCents:    150000,
		AmountEURCents: &eur,
		Year:           2025,
		Month:          7,
	})
	requireStatus(t, resp, http.StatusOK)
	updated := decodeBody[invoiceResponse](t, resp)
	if updated.AmountEURCents == nil || *updated.AmountEURCents != 172500 {
		t.Errorf("amount_eur_cents = %v, want 172500", updated.AmountEURCents)
	}
	if updated.Month != 7 {
		t.Errorf("month = %d, want 7", updated.Month)
	}

	resp = f.do(t, http.MethodDelete, "/api/invoices/"+created.ID, tokenOne, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/invoices/"+created.ID, tokenOne, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateInvoiceRejectsForeignClient(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenTwo, clientPayload{Name: "Theirs"})

	resp := f.do(t, http.MethodPost, "/api/invoices", tokenOne, invoicePayload{
		ClientID:    client.ID,
		AmountCents: 100,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFlagPatchIsPartial(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme"})
	inv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 100, Year: 2025, Month: 1})

	set := true
	resp := f.do(t, http.MethodPatch, "/api/invoices/"+inv.ID+"/flags", tokenOne,
		map[string]*bool{"payment_received": &set})
	requireStatus(t, resp, http.StatusOK)
	patched := decodeBody[invoiceResponse](t, resp)

	if !patched.PaymentReceived {
		t.Error("payment_received should be set")
	}
	if patched.PaymentReceivedAt == nil {
		t.Error("payment_received_at should be stamped")
	}
	if patched.SentToClient || patched.SentToAccountant {
		t.Error("untouched flags must stay clear")
	}

	unset := false
	resp = f.do(t, http.MethodPatch, "/api/invoices/"+inv.ID+"/flags", tokenOne,
		map[string]*bool{"payment_received": &unset})
	requireStatus(t, resp, http.StatusOK)
	patched = decodeBody[invoiceResponse](t, resp)
	if patched.PaymentReceived {
		t.Error("payment_received should be cleared again")
	}
}

func TestFileUploadListDownload(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme"})
	inv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 100, Year: 2025, Month: 1})

	content := []byte("%PDF-1.4 fake invoice body")
	resp := f.upload(t, tokenOne, inv.ID, "invoice.pdf", content)
	requireStatus(t, resp, http.StatusCreated)
	uploaded := decodeBody[fileResponse](t, resp)
	if uploaded.FileName != "invoice.pdf" {
		t.Errorf("file name = %q", uploaded.FileName)
	}
	if f.queue.published != 1 {
		t.Errorf("published jobs = %d, want 1", f.queue.published)
	}

	// Upload marks the invoice pending for extraction.
	resp = f.do(t, http.MethodGet, "/api/invoices/"+inv.ID, tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	got := decodeBody[invoiceResponse](t, resp)
	if got.ExtractionStatus != storage.ExtractionPending {
		t.Errorf("extraction status = %q, want %q", got.ExtractionStatus, storage.ExtractionPending)
	}

	resp = f.do(t, http.MethodGet, "/api/invoices/"+inv.ID+"/files", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	files := decodeBody[[]fileResponse](t, resp)
	if len(files) != 1 || files[0].ID != uploaded.ID {
		t.Fatalf("listed files = %+v", files)
	}

	resp = f.do(t, http.MethodGet, "/api/invoices/"+inv.ID+"/files/"+uploaded.ID, tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, content) {
		t.Error("downloaded bytes differ from upload")
	}

	// Other users get nothing.
	resp = f.do(t, http.MethodGet, "/api/invoices/"+inv.ID+"/files", tokenTwo, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user list = %d, want 404", resp.StatusCode)
	}
}

func TestUploadRequiresDocumentPart(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme"})
	inv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 100, Year: 2025, Month: 1})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/api/invoices/"+inv.ID+"/files", &buf)
	req.Header.Set("Authorization", "Bearer "+tokenOne)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendInvoiceFlow(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPut, "/api/settings/email-account", tokenOne, emailAccountPayload{
		Kind:     core.EmailKindSMTP,
		Address:  "me@example.com",
		SMTPHost: "localhost",
		SMTPPort: 25,
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	client := f.createClient(t, tokenOne, clientPayload{
		Name:             "Acme",
		Email:            "billing@acme.example",
		RequireTimesheet: true,
	})
	inv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 100000, Year: 2025, Month: 6})

	resp = f.upload(t, tokenOne, inv.ID, "invoice.pdf", []byte("%PDF invoice"))
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	// Timesheet rule blocks the first attempt.
	resp = f.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/send", tokenOne, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("send without timesheet = %d, want 409", resp.StatusCode)
	}
	if len(f.mailer.messages) != 0 {
		t.Fatal("no mail should have gone out")
	}

	resp = f.upload(t, tokenOne, inv.ID, "timesheet-june.pdf", []byte("%PDF timesheet"))
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/send", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	sent := decodeBody[invoiceResponse](t, resp)
	if !sent.SentToClient || sent.SentToClientAt == nil {
		t.Error("send should flip sent_to_client with a timestamp")
	}

	if len(f.mailer.messages) != 1 {
		t.Fatalf("mailer got %d messages, want 1", len(f.mailer.messages))
	}
	msg := f.mailer.messages[0]
	if msg.To != "billing@acme.example" {
		t.Errorf("to = %q", msg.To)
	}
	if len(msg.Attachments) != 2 {
		t.Errorf("attachments = %d, want 2", len(msg.Attachments))
	}
	if !strings.Contains(msg.Subject, "2025-06") {
		t.Errorf("subject %q should carry the period", msg.Subject)
	}
}

func TestSendInvoiceWithoutAccount(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme", Email: "billing@acme.example"})
	inv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 100, Year: 2025, Month: 1})

	resp := f.do(t, http.MethodPost, "/api/invoices/"+inv.ID+"/send", tokenOne, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestEmailAccountNeverEchoesPassword(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPut, "/api/settings/email-account", tokenOne, emailAccountPayload{
		Kind:         core.EmailKindSMTP,
		Address:      "me@example.com",
		SMTPHost:     "localhost",
		SMTPPort:     587,
		SMTPUsername: "me",
		SMTPPassword: "hunter2",
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/settings/email-account", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "hunter2") {
		t.Error("response leaks the smtp password")
	}
}

func TestConversionRateSettings(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, "/api/settings/conversion-rate", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	got := decodeBody[conversionRateResponse](t, resp)
	if got.Set || got.Rate != core.DefaultGBPToEURRate {
		t.Errorf("unset rate = %+v, want default %v", got, core.DefaultGBPToEURRate)
	}

	resp = f.do(t, http.MethodPut, "/api/settings/conversion-rate", tokenOne, map[string]float64{"rate": 1.25})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/settings/conversion-rate", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	got = decodeBody[conversionRateResponse](t, resp)
	if !got.Set || got.Rate != 1.25 {
		t.Errorf("rate = %+v, want 1.25 set", got)
	}

	resp = f.do(t, http.MethodPut, "/api/settings/conversion-rate", tokenOne, map[string]float64{"rate": -1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative rate = %d, want 400", resp.StatusCode)
	}
}

func TestSummaryReport(t *testing.T) {
	f := newServerFixture(t)

	eurClient := f.createClient(t, tokenOne, clientPayload{Name: "Euro Co"})
	gbpClient := f.createClient(t, tokenOne, clientPayload{Name: "Pound Co", Currency: core.CurrencyGBP})

	f.createInvoice(t, tokenOne, invoicePayload{ClientID: eurClient.ID, AmountCents: 100000, Year: 2025, Month: 5})
	gbpInv := f.createInvoice(t, tokenOne, invoicePayload{ClientID: gbpClient.ID, AmountCents: 100000, Year: 2025, Month: 6})

	resp := f.do(t, http.MethodGet, "/api/reports/summary", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	summary := decodeBody[summaryResponse](t, resp)

	// 1000 EUR + 1000 GBP at the default 1.15 rate.
	if summary.TotalIncome != 2150 {
		t.Errorf("total income = %v, want 2150", summary.TotalIncome)
	}
	if len(summary.ByClient) != 2 || summary.ByClient[0].Name != "Pound Co" {
		t.Errorf("by_client = %+v, want Pound Co first", summary.ByClient)
	}
	if len(summary.ByMonth) != 2 || summary.ByMonth[0].Month != "2025-05" {
		t.Errorf("by_month = %+v", summary.ByMonth)
	}
	if summary.SentToClient != 0 || summary.PendingToAccountant != 0 {
		t.Errorf("status buckets should be empty: %+v", summary)
	}

	// A flag change must invalidate the cached report.
	set := true
	resp = f.do(t, http.MethodPatch, "/api/invoices/"+gbpInv.ID+"/flags", tokenOne,
		map[string]*bool{"sent_to_client": &set})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/reports/summary", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	summary = decodeBody[summaryResponse](t, resp)
	if summary.SentToClient != 1150 || summary.PendingToAccountant != 1150 {
		t.Errorf("after flag: sent=%v pending=%v, want 1150 both", summary.SentToClient, summary.PendingToAccountant)
	}

	// A custom rate changes the conversion on the next read.
	resp = f.do(t, http.MethodPut, "/api/settings/conversion-rate", tokenOne, map[string]float64{"rate": 1.2})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/reports/summary", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	summary = decodeBody[summaryResponse](t, resp)
	if summary.TotalIncome != 2200 {
		t.Errorf("total with 1.2 rate = %v, want 2200", summary.TotalIncome)
	}

	// Users only see their own numbers.
	resp = f.do(t, http.MethodGet, "/api/reports/summary", tokenTwo, nil)
	requireStatus(t, resp, http.StatusOK)
	other := decodeBody[summaryResponse](t, resp)
	if other.TotalIncome != 0 {
		t.Errorf("other user total = %v, want 0", other.TotalIncome)
	}
}

func TestSummaryPrefersStoredEUR(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Pound Co", Currency: core.CurrencyGBP})

	eur := int64(99900)
	f.createInvoice(t, tokenOne, invoicePayload{
		ClientID:       client.ID,
		AmountCents:    100000,
		AmountEURCents: &eur,
		Year:           2025,
		Month:          3,
	})

	resp := f.do(t, http.MethodGet, "/api/reports/summary", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	summary := decodeBody[summaryResponse](t, resp)
	if summary.TotalIncome != 999 {
		t.Errorf("total = %v, want the pre-converted 999", summary.TotalIncome)
	}
}

func TestSummaryXLSXDownload(t *testing.T) {
	f := newServerFixture(t)
	client := f.createClient(t, tokenOne, clientPayload{Name: "Acme"})
	f.createInvoice(t, tokenOne, invoicePayload{ClientID: client.ID, AmountCents: 50000, Year: 2025, Month: 2})

	resp := f.do(t, http.MethodGet, "/api/reports/summary.xlsx", tokenOne, nil)
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "summary.xlsx") {
		t.Errorf("content disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	// XLSX files are zip archives.
	if len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Error("body does not look like an xlsx archive")
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/api/clients", tokenOne, map[string]any{
		"name":     "Acme",
		"surprise": true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	srv := NewServer(Options{
		Verifier:           auth.StaticVerifier{tokenOne: "user-1"},
		RateLimitPerMinute: 3,
	}, repo,
		services.NewInvoiceService(repo, blobs, nil),
		mail.NewSendService(repo, blobs, nil),
		blobs,
		metrics.New("api"))
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})

	var last int
	for i := 0; i < 4; i++ {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/clients", nil)
		req.Header.Set("Authorization", "Bearer "+tokenOne)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("fourth request = %d, want 429", last)
	}
}

func TestSecurityHeaders(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
