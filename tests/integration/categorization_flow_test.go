package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"finbridge/internal/provider"
)

// createCategory drives POST /categories and returns the new category's ID.
func createCategory(t *testing.T, app *testApp, token, name, categoryType string) uint {
	t.Helper()

	body := fmt.Sprintf(`{"name":%q,"type":%q}`, name, categoryType)
	rec := app.request("POST", "/api/v1/categories", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category failed: %d %s", rec.Code, rec.Body.String())
	}
	category := parseJSON(t, rec)["category"].(map[string]interface{})
	return uint(category["id"].(float64))
}

func previewOne(t *testing.T, app *testApp, token, description string) map[string]interface{} {
	t.Helper()

	body := fmt.Sprintf(`{"descriptions":[%q]}`, description)
	rec := app.request("POST", "/api/v1/categorize", body, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("categorize preview failed: %d %s", rec.Code, rec.Body.String())
	}
	results := parseJSON(t, rec)["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0].(map[string]interface{})
}

func TestCategorizationFlow_KeywordPreview(t *testing.T) {
	app := setupApp(t)
	accessToken, _, _ := app.registerUser(t, "preview@test.com", "password123")

	// A strong keyword match with no matching tenant category is offered as
	// a creation suggestion without a category ID.
	result := previewOne(t, app, accessToken, "STARBUCKS 80122 LONDON")
	if result["action"] != "suggest" {
		t.Errorf("expected suggest without tenant category, got %v", result["action"])
	}
	if result["suggested_category_name"] != "Dining" {
		t.Errorf("expected Dining suggestion, got %v", result["suggested_category_name"])
	}
	if result["suggested_category_id"] != nil {
		t.Errorf("expected nil category ID, got %v", result["suggested_category_id"])
	}

	// Once the category exists, the same description auto-assigns to it.
	diningID := createCategory(t, app, accessToken, "Dining", "expense")
	result = previewOne(t, app, accessToken, "STARBUCKS 80122 LONDON")
	if result["action"] != "auto-assign" {
		t.Errorf("expected auto-assign, got %v (%v)", result["action"], result["reasoning"])
	}
	if uint(result["suggested_category_id"].(float64)) != diningID {
		t.Errorf("expected category %d, got %v", diningID, result["suggested_category_id"])
	}
	if result["confidence"].(float64) < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %v", result["confidence"])
	}

	// An unknown merchant with no keyword signal falls through to manual.
	result = previewOne(t, app, accessToken, "XK19 CONSULTING")
	if result["action"] != "manual" {
		t.Errorf("expected manual, got %v", result["action"])
	}
}

func TestCategorizationFlow_CorrectionsTrainMerchantHistory(t *testing.T) {
	app := setupApp(t)
	accessToken, _, userID := app.registerUser(t, "learner@test.com", "password123")

	officeID := createCategory(t, app, accessToken, "Office Supplies", "expense")

	// Import three transactions from a merchant the taxonomy knows nothing
	// about; they all land in the default category.
	conn, _ := app.seedConnection(t, userID, "prov-acct-learn")
	app.Provider.transactions["prov-acct-learn"] = []provider.Transaction{
		{ID: "tx-l1", Description: "ACME WIDGETS LTD 001", Amount: -45.00, Currency: "GBP", Timestamp: time.Now().AddDate(0, 0, -9)},
		{ID: "tx-l2", Description: "ACME WIDGETS LTD 002", Amount: -12.00, Currency: "GBP", Timestamp: time.Now().AddDate(0, 0, -6)},
		{ID: "tx-l3", Description: "ACME WIDGETS LTD 003", Amount: -30.00, Currency: "GBP", Timestamp: time.Now().AddDate(0, 0, -3)},
	}
	rec := app.request("POST", fmt.Sprintf("/api/v1/banking/connections/%d/sync", conn.ID), "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync failed: %d %s", rec.Code, rec.Body.String())
	}

	result := previewOne(t, app, accessToken, "ACME WIDGETS LTD 004")
	if result["action"] != "manual" {
		t.Fatalf("expected manual before corrections, got %v", result["action"])
	}

	// Correct all three to Office Supplies via the API.
	rec = app.request("GET", "/api/v1/transactions", "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("transaction list failed: %d %s", rec.Code, rec.Body.String())
	}
	rows := parseJSON(t, rec)["data"].([]interface{})
	if len(rows) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(rows))
	}
	for _, row := range rows {
		id := uint(row.(map[string]interface{})["id"].(float64))
		body := fmt.Sprintf(`{"category_id":%d}`, officeID)
		rec = app.request("PUT", fmt.Sprintf("/api/v1/transactions/%d/category", id), body, accessToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("recategorize failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	// Three consistent corrections cross the merchant-history threshold.
	result = previewOne(t, app, accessToken, "ACME WIDGETS LTD 004")
	if result["action"] != "auto-assign" {
		t.Fatalf("expected auto-assign after corrections, got %v (%v)", result["action"], result["reasoning"])
	}
	if uint(result["suggested_category_id"].(float64)) != officeID {
		t.Errorf("expected category %d, got %v", officeID, result["suggested_category_id"])
	}
	if result["confidence"].(float64) != 0.95 {
		t.Errorf("expected merchant confidence 0.95, got %v", result["confidence"])
	}
}

func TestCategorizationFlow_DeleteCategoryReassignsTransactions(t *testing.T) {
	app := setupApp(t)
	accessToken, _, userID := app.registerUser(t, "delete@test.com", "password123")

	keepID := createCategory(t, app, accessToken, "Short Lived", "expense")

	conn, _ := app.seedConnection(t, userID, "prov-acct-del")
	app.Provider.transactions["prov-acct-del"] = []provider.Transaction{
		{ID: "tx-d1", Description: "SOMETHING PLAIN", Amount: -9.99, Currency: "GBP", Timestamp: time.Now().AddDate(0, 0, -2)},
	}
	rec := app.request("POST", fmt.Sprintf("/api/v1/banking/connections/%d/sync", conn.ID), "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync failed: %d %s", rec.Code, rec.Body.String())
	}

	rows := parseJSON(t, app.request("GET", "/api/v1/transactions", "", accessToken))["data"].([]interface{})
	txID := uint(rows[0].(map[string]interface{})["id"].(float64))
	rec = app.request("PUT", fmt.Sprintf("/api/v1/transactions/%d/category", txID),
		fmt.Sprintf(`{"category_id":%d}`, keepID), accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("recategorize failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.request("DELETE", fmt.Sprintf("/api/v1/categories/%d", keepID), "", accessToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete category failed: %d %s", rec.Code, rec.Body.String())
	}

	// The transaction survives on the default category.
	rec = app.request("GET", fmt.Sprintf("/api/v1/transactions/%d", txID), "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected transaction to survive, got %d: %s", rec.Code, rec.Body.String())
	}
	tx := parseJSON(t, rec)["transaction"].(map[string]interface{})
	category := tx["category"].(map[string]interface{})
	if category["name"] != "Uncategorized" {
		t.Errorf("expected reassignment to Uncategorized, got %v", category["name"])
	}
}
