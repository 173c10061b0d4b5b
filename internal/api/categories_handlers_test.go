package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipriver/internal/models"
	"clipriver/internal/storage"
)

func TestCategoryCreateRequiresAdmin(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createTestUser(t, store, "viewer", "viewer@example.com", models.RoleUser)

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/categories", map[string]any{
		"name": "music",
	}), user)
	rec := httptest.NewRecorder()
	handler.Categories(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestCategoryCreateAndPublicList(t *testing.T) {
	handler, store := newTestHandler(t)
	admin := createTestUser(t, store, "admin", "admin@example.com", models.RoleAdmin)

	create := asUser(jsonRequest(t, http.MethodPost, "/api/v1/categories", map[string]any{
		"name":        "cooking",
		"description": "recipes and kitchen technique",
	}), admin)
	createRec := httptest.NewRecorder()
	handler.Categories(createRec, create)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", createRec.Code, createRec.Body.String())
	}
	var created categoryResponse
	decodeEnvelope(t, createRec, &created)
	if created.Name != "cooking" || created.UserID != admin.ID {
		t.Fatalf("created = %+v", created)
	}

	// Listing carries no actor context at all.
	list := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	listRec := httptest.NewRecorder()
	handler.Categories(listRec, list)
	var categories []categoryResponse
	decodeEnvelope(t, listRec, &categories)
	if len(categories) != 1 || categories[0].ID != created.ID {
		t.Fatalf("categories = %+v", categories)
	}
}

func TestCategoryCreateRejectsBlankName(t *testing.T) {
	handler, store := newTestHandler(t)
	admin := createTestUser(t, store, "admin", "admin@example.com", models.RoleAdmin)

	req := asUser(jsonRequest(t, http.MethodPost, "/api/v1/categories", map[string]any{
		"name": "   ",
	}), admin)
	rec := httptest.NewRecorder()
	handler.Categories(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCategoryUpdateAndDeleteAdminOnly(t *testing.T) {
	handler, store := newTestHandler(t)
	admin := createTestUser(t, store, "admin", "admin@example.com", models.RoleAdmin)
	user := createTestUser(t, store, "viewer", "viewer@example.com", models.RoleUser)

	category, err := store.CreateCategory("gaming", "", admin.ID)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	patch := asUser(jsonRequest(t, http.MethodPatch, "/api/v1/categories/"+category.ID, map[string]any{
		"name": "retro gaming",
	}), user)
	patchRec := httptest.NewRecorder()
	handler.CategoryByID(patchRec, patch)
	if patchRec.Code != http.StatusForbidden {
		t.Fatalf("non-admin patch status = %d", patchRec.Code)
	}

	patch = asUser(jsonRequest(t, http.MethodPatch, "/api/v1/categories/"+category.ID, map[string]any{
		"name":        "retro gaming",
		"description": "consoles of the 90s",
	}), admin)
	patchRec = httptest.NewRecorder()
	handler.CategoryByID(patchRec, patch)
	if patchRec.Code != http.StatusOK {
		t.Fatalf("admin patch status = %d: %s", patchRec.Code, patchRec.Body.String())
	}
	var updated categoryResponse
	decodeEnvelope(t, patchRec, &updated)
	if updated.Name != "retro gaming" || updated.Description != "consoles of the 90s" {
		t.Fatalf("updated = %+v", updated)
	}

	del := asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+category.ID, nil), admin)
	delRec := httptest.NewRecorder()
	handler.CategoryByID(delRec, del)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", delRec.Code, delRec.Body.String())
	}
	if !strings.Contains(delRec.Body.String(), "category deleted") {
		t.Fatalf("delete body = %s", delRec.Body.String())
	}
	if _, exists := store.GetCategory(category.ID); exists {
		t.Fatal("category still present after delete")
	}
}

func TestCategoryLookupUnknownID(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories/nope", nil)
	rec := httptest.NewRecorder()
	handler.CategoryByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestVideosByCategory(t *testing.T) {
	handler, store := newTestHandler(t)
	admin := createTestUser(t, store, "admin", "admin@example.com", models.RoleAdmin)

	category, err := store.CreateCategory("baking", "", admin.ID)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	filed := seedVideo(t, handler, store, admin, "Rye Loaf")
	seedVideo(t, handler, store, admin, "Unrelated Clip")
	if _, err := store.UpdateVideo(filed.ID, storage.VideoUpdate{CategoryID: &category.ID}); err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories/"+category.ID+"/videos", nil)
	rec := httptest.NewRecorder()
	handler.CategoryByID(rec, req)

	var videos []videoResponse
	decodeEnvelope(t, rec, &videos)
	if len(videos) != 1 || videos[0].ID != filed.ID {
		t.Fatalf("videos = %+v, want only the filed clip", videos)
	}
}

func TestCategoryDeleteUnfilesVideos(t *testing.T) {
	handler, store := newTestHandler(t)
	admin := createTestUser(t, store, "admin", "admin@example.com", models.RoleAdmin)

	category, err := store.CreateCategory("travel", "", admin.ID)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	video := seedVideo(t, handler, store, admin, "Coast Drive")
	if _, err := store.UpdateVideo(video.ID, storage.VideoUpdate{CategoryID: &category.ID}); err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+category.ID, nil), admin)
	rec := httptest.NewRecorder()
	handler.CategoryByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}

	refreshed, exists := store.GetVideo(video.ID)
	if !exists {
		t.Fatal("video missing after category delete")
	}
	if refreshed.CategoryID != "" {
		t.Fatalf("categoryId = %q, want cleared", refreshed.CategoryID)
	}
}
