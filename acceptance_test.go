package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/config"
	"github.com/Roland735/cribmatch-website-sub000/middleware"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appSecret = "acceptance-secret"

// graphRecorder stands in for the Graph API and keeps every outbound message
type graphRecorder struct {
	mu   sync.Mutex
	sent []map[string]interface{}
}

func (g *graphRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]interface{}
	_ = json.Unmarshal(body, &payload)

	g.mu.Lock()
	g.sent = append(g.sent, payload)
	id := len(g.sent)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"messages":[{"id":"wamid.out.%d"}]}`, id)
}

// lastText returns the body of the latest outbound text or interactive message
func (g *graphRecorder) lastText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return ""
	}
	last := g.sent[len(g.sent)-1]
	if text, ok := last["text"].(map[string]interface{}); ok {
		return text["body"].(string)
	}
	if interactive, ok := last["interactive"].(map[string]interface{}); ok {
		return interactive["body"].(map[string]interface{})["text"].(string)
	}
	return ""
}

type chatClient struct {
	t      *testing.T
	router *gin.Engine
	phone  string
	seq    int
}

// say posts a signed Cloud API text message and returns the turn result
func (c *chatClient) say(text string) map[string]interface{} {
	c.t.Helper()
	c.seq++
	body := fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"messages":[{"id":"wamid.in.%d","from":%q,"timestamp":"%d","type":"text","text":{"body":%q}}]}}]}]}`,
		c.seq, c.phone, time.Now().Unix(), text)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, middleware.Sign(appSecret, []byte(body)))
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())

	var result map[string]interface{}
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func setupAcceptance(t *testing.T) (*chatClient, *graphRecorder) {
	t.Helper()
	graph := &graphRecorder{}
	server := httptest.NewServer(graph)
	t.Cleanup(server.Close)

	cfg := testConfig()
	cfg.WhatsApp.APIToken = "graph-token"
	cfg.WhatsApp.PhoneNumberID = "1234"
	cfg.WhatsApp.APIBaseURL = server.URL
	cfg.WhatsApp.AppSecret = appSecret

	router := setupRouter(t, cfg)
	return &chatClient{t: t, router: router, phone: "263771234567"}, graph
}

// TestSearchAndRevealAcceptance walks a tenant from greeting to lister contact details
func TestSearchAndRevealAcceptance(t *testing.T) {
	client, graph := setupAcceptance(t)
	require.NoError(t, config.GetDB().Create(&models.Listing{
		Title:           "Garden cottage",
		Suburb:          "Borrowdale",
		PricePerMonth:   250,
		Bedrooms:        1,
		ContactName:     "Rudo",
		ContactWhatsApp: "263772222222",
		Status:          models.ListingStatusPublished,
	}).Error)

	result := client.say("hi")
	assert.Equal(t, "AWAITING_MENU_CHOICE", result["state"])
	assert.Contains(t, graph.lastText(), "Welcome")

	result = client.say("2")
	assert.Equal(t, "SEARCH_WAIT_AREA_BUDGET", result["state"])

	result = client.say("Borrowdale, $300")
	assert.Equal(t, "SEARCH_RESULTS", result["state"])

	result = client.say("1")
	assert.Equal(t, "CONTACT_REVEALED", result["state"])
	assert.Contains(t, graph.lastText(), "Rudo")
	assert.Contains(t, graph.lastText(), "https://wa.me/263772222222")

	var logged int64
	require.NoError(t, config.GetDB().Model(&models.Message{}).Where("phone = ? AND author = ?", client.phone, models.AuthorSystem).Count(&logged).Error)
	assert.Equal(t, int64(4), logged, "every turn logs one state transition")
}

// TestListPropertyAcceptance walks a lister through the listing draft
func TestListPropertyAcceptance(t *testing.T) {
	client, graph := setupAcceptance(t)

	for _, text := range []string{"menu", "1", "2-bed flat", "Avondale", "Apartment", "650", "2"} {
		client.say(text)
	}
	result := client.say("skip")
	assert.Equal(t, "LISTING_CREATED", result["state"])

	var listing models.Listing
	require.NoError(t, config.GetDB().Take(&listing).Error)
	assert.Equal(t, "2-bed flat", listing.Title)
	assert.Equal(t, "Avondale", listing.Suburb)
	assert.Equal(t, 650.0, listing.PricePerMonth)
	assert.Equal(t, 2, listing.Bedrooms)
	assert.Equal(t, client.phone, listing.ListerPhoneNumber)
	assert.Contains(t, graph.lastText(), listing.ShortID)
}

// TestUnsignedWebhookRejected checks that a configured app secret is enforced
func TestUnsignedWebhookRejected(t *testing.T) {
	client, graph := setupAcceptance(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(`{"user_message":"hi","from":"263771234567"}`))
	w := httptest.NewRecorder()
	client.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, graph.sent)
}
