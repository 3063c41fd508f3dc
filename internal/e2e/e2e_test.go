package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/analytics"
	"github.com/smallbiznis/opensmile/internal/appointment"
	"github.com/smallbiznis/opensmile/internal/assistant"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/auth"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/smallbiznis/opensmile/internal/enrichment"
	"github.com/smallbiznis/opensmile/internal/interaction"
	"github.com/smallbiznis/opensmile/internal/lead"
	"github.com/smallbiznis/opensmile/internal/migration"
	"github.com/smallbiznis/opensmile/internal/observability"
	"github.com/smallbiznis/opensmile/internal/practice"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/scheduler"
	"github.com/smallbiznis/opensmile/internal/server"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/internal/webhook"
	webhooksvc "github.com/smallbiznis/opensmile/internal/webhook/service"
	"github.com/smallbiznis/opensmile/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	salesEmail    = "sales@opensmile.local"
	salesPassword = "e2e-sales-password"
	webhookSecret = "e2e-meta-secret"
)

type testEnv struct {
	app       *fx.App
	server    *server.Server
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	httpSrv   *httptest.Server
	dataDir   string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dir, err := os.MkdirTemp("", "opensmile-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dir)
		os.Exit(1)
	}
	env.dataDir = dir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_WebhookToFirstContact(t *testing.T) {
	campaignID := demoCampaignID(t)
	payload := []byte(fmt.Sprintf(`{
		"leadId": "e2e-%d",
		"campaignId": %q,
		"created_time": "2026-03-02T09:00:00+0000",
		"field_data": [
			{"name": "full_name", "values": ["Casey Webb"]},
			{"name": "phone_number", "values": ["+44 7700 900321"]},
			{"name": "email", "values": ["casey.webb@example.com"]}
		]
	}`, time.Now().UnixNano(), campaignID.String()))

	resp, body := postWebhook(t, payload, webhooksvc.Sign([]byte(webhookSecret), payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for webhook, got %d: %s", resp.StatusCode, string(body))
	}
	var created struct {
		Status string `json:"status"`
		LeadID string `json:"leadId"`
	}
	decode(t, body, &created)
	if created.Status != "created" || created.LeadID == "" {
		t.Fatalf("unexpected webhook result: %s", string(body))
	}

	resp, body = postWebhook(t, payload, webhooksvc.Sign([]byte(webhookSecret), payload))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"duplicate"`) {
		t.Fatalf("expected duplicate result, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = postWebhook(t, payload, "sha256=00")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad signature, got %d: %s", resp.StatusCode, string(body))
	}

	client := loginSales(t)

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/leads?status=ENQUIRY", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for lead list, got %d: %s", resp.StatusCode, string(body))
	}
	if !strings.Contains(string(body), created.LeadID) {
		t.Fatalf("webhook lead missing from list: %s", string(body))
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/api/interactions", map[string]any{
		"leadId": created.LeadID,
		"type":   "CALL_OUTBOUND",
		"body":   "Asked about Invisalign before the wedding",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for interaction, got %d: %s", resp.StatusCode, string(body))
	}
	var interactionResp struct {
		Data struct {
			ID               string `json:"id"`
			EnrichmentStatus string `json:"enrichmentStatus"`
		} `json:"data"`
	}
	decode(t, body, &interactionResp)

	waitFor(t, 10*time.Second, func() bool {
		var status string
		env.db.Raw(`SELECT enrichment_status FROM interactions WHERE id = ?`,
			mustParseID(t, interactionResp.Data.ID)).Scan(&status)
		return status == "COMPLETED"
	})

	var leadResp struct {
		Data struct {
			FirstContactAt *time.Time `json:"firstContactAt"`
			Objections     []string   `json:"objections"`
		} `json:"data"`
	}
	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/leads/"+created.LeadID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for lead, got %d: %s", resp.StatusCode, string(body))
	}
	decode(t, body, &leadResp)
	if leadResp.Data.FirstContactAt == nil {
		t.Fatalf("expected first contact to be recorded")
	}
	if len(leadResp.Data.Objections) == 0 {
		t.Fatalf("expected enrichment objections merged into lead")
	}
}

func TestE2E_AppointmentOutcome(t *testing.T) {
	client := loginSales(t)

	var practiceID snowflake.ID
	if err := env.db.Raw(`SELECT id FROM practices ORDER BY id LIMIT 1`).Scan(&practiceID).Error; err != nil || practiceID == 0 {
		t.Fatalf("query demo practice: %v", err)
	}
	var treatmentID snowflake.ID
	if err := env.db.Raw(`SELECT id FROM treatment_types WHERE practice_id = ? ORDER BY name LIMIT 1`, practiceID).
		Scan(&treatmentID).Error; err != nil || treatmentID == 0 {
		t.Fatalf("query treatment type: %v", err)
	}

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/leads", map[string]any{
		"practiceId": practiceID.String(),
		"name":       "Morgan Ellis",
		"email":      fmt.Sprintf("morgan-%d@example.com", time.Now().UnixNano()),
		"phone":      "07700 900456",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for lead, got %d: %s", resp.StatusCode, string(body))
	}
	var leadResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decode(t, body, &leadResp)

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/api/appointments", map[string]any{
		"leadId":          leadResp.Data.ID,
		"treatmentTypeId": treatmentID.String(),
		"scheduledAt":     time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339),
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for appointment, got %d: %s", resp.StatusCode, string(body))
	}
	var apptResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decode(t, body, &apptResp)

	outcomeURL := env.baseURL + "/api/appointments/" + apptResp.Data.ID + "/outcome"
	outcome := map[string]any{"showedUp": true, "converted": true, "estimatedValue": 3500}
	resp, body = doJSON(t, client, http.MethodPost, outcomeURL, outcome, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for outcome, got %d: %s", resp.StatusCode, string(body))
	}
	resp, body = doJSON(t, client, http.MethodPost, outcomeURL, outcome, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 for second outcome, got %d: %s", resp.StatusCode, string(body))
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM leads WHERE id = ?`, mustParseID(t, leadResp.Data.ID)).
		Scan(&status).Error; err != nil {
		t.Fatalf("query lead status: %v", err)
	}
	if status != "TREATMENT_STARTED" {
		t.Fatalf("expected lead TREATMENT_STARTED, got %s", status)
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/analytics/dashboard", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for dashboard, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_RequiresSession(t *testing.T) {
	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/api/leads", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without session, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_SchedulerRunOnce(t *testing.T) {
	if err := env.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		schedulerSv *scheduler.Scheduler
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		redact.Module,
		tenant.Module,
		access.Module,
		ratelimit.Module,
		auth.Module,
		practice.Module,
		lead.Module,
		interaction.Module,
		appointment.Module,
		enrichment.Module,
		analytics.Module,
		assistant.Module,
		webhook.Module,
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		server:    srv,
		db:        dbConn,
		baseURL:   httpSrv.URL,
		scheduler: schedulerSv,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

func setDefaultEnv(dir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", "file:"+filepath.Join(dir, "e2e.db")+"?_busy_timeout=5000&_journal_mode=WAL")
	setEnvIfEmpty("AUTH_COOKIE_SECURE", "false")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("META_APP_SECRET", webhookSecret)
	setEnvIfEmpty("ALLOW_SEEDING", "true")
	setEnvIfEmpty("SEED_ADMIN_PASSWORD", "e2e-admin-password")
	setEnvIfEmpty("SEED_SALES_PASSWORD", salesPassword)
	setEnvIfEmpty("ENRICHMENT_MAX_ATTEMPTS", "1")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func loginSales(t *testing.T) *http.Client {
	t.Helper()
	client := newHTTPClient()

	req := map[string]any{
		"email":    salesEmail,
		"password": os.Getenv("SEED_SALES_PASSWORD"),
	}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/auth/login", req, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d: %s", resp.StatusCode, string(body))
	}

	baseURL, err := url.Parse(env.baseURL)
	if err == nil {
		found := false
		for _, cookie := range client.Jar.Cookies(baseURL) {
			if cookie.Name == "_sid" && strings.TrimSpace(cookie.Value) != "" {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected session cookie after login")
		}
	}
	return client
}

func demoCampaignID(t *testing.T) snowflake.ID {
	t.Helper()
	var id snowflake.ID
	if err := env.db.Raw(`SELECT id FROM campaigns ORDER BY id LIMIT 1`).Scan(&id).Error; err != nil || id == 0 {
		t.Fatalf("query demo campaign: %v", err)
	}
	return id
}

func postWebhook(t *testing.T, payload []byte, signature string) (*http.Response, []byte) {
	t.Helper()
	return doRaw(t, newHTTPClient(), http.MethodPost, env.baseURL+"/api/webhooks/meta-leads", payload, map[string]string{
		"Content-Type":        "application/json",
		"X-Hub-Signature-256": signature,
		"X-Forwarded-For":     "203.0.113.50",
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func mustParseID(t *testing.T, value string) snowflake.ID {
	t.Helper()
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		t.Fatalf("invalid snowflake id: %s", value)
	}
	return parsed
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func doJSON(t *testing.T, client *http.Client, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		if headers == nil {
			headers = map[string]string{}
		}
		headers["Content-Type"] = "application/json"
	}
	return doRaw(t, client, method, reqURL, raw, headers)
}

func doRaw(t *testing.T, client *http.Client, method, reqURL string, payload []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func newHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: 15 * time.Second,
		Jar:     jar,
	}
}
