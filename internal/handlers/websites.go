package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/db"
)

// WebsitesHandler implements the websites CRUD surface.
type WebsitesHandler struct {
	database *db.Database
}

// NewWebsitesHandler builds a WebsitesHandler bound to the given
// database.
func NewWebsitesHandler(database *db.Database) *WebsitesHandler {
	return &WebsitesHandler{database: database}
}

// List handles GET /api/websites with limit/offset pagination.
func (h *WebsitesHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	websites, err := db.ListWebsites(c.Request.Context(), h.database, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"websites": toWebsiteResponses(websites)})
}

// Get handles GET /api/websites/:domain.
func (h *WebsitesHandler) Get(c *gin.Context) {
	domain := c.Param("domain")

	website, err := db.GetWebsiteByDomain(c.Request.Context(), h.database, domain)
	if err == sql.ErrNoRows {
		notFound(c, "website not found")
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toWebsiteResponse(website))
}

type updateWebsiteRequest struct {
	IsSSL      *bool   `json:"is_ssl"`
	IsDev      *bool   `json:"is_dev"`
	OwnerEmail *string `json:"owner_email"`
	AdminEmail *string `json:"admin_email"`
}

// Update handles PUT /api/websites/:domain.
func (h *WebsitesHandler) Update(c *gin.Context) {
	domain := c.Param("domain")

	var req updateWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := db.UpdateWebsiteMetadata(c.Request.Context(), h.database, domain, req.IsSSL, req.IsDev, req.OwnerEmail, req.AdminEmail)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		notFound(c, "website not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Delete handles DELETE /api/websites/:domain.
func (h *WebsitesHandler) Delete(c *gin.Context) {
	domain := c.Param("domain")

	result, err := db.DeleteWebsite(c.Request.Context(), h.database, domain)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		notFound(c, "website not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func notFound(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"message": message,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

type websiteResponse struct {
	ID             int     `json:"id"`
	Domain         string  `json:"domain"`
	IsSSL          bool    `json:"is_ssl"`
	IsDev          bool    `json:"is_dev"`
	OwnerEmail     *string `json:"owner_email,omitempty"`
	AdminEmail     *string `json:"admin_email,omitempty"`
	LastActivityAt *string `json:"last_activity_at,omitempty"`
}

func toWebsiteResponse(w *db.Website) websiteResponse {
	resp := websiteResponse{
		ID:     w.ID,
		Domain: w.Domain,
		IsSSL:  w.IsSSL,
		IsDev:  w.IsDev,
	}
	if w.OwnerEmail.Valid {
		resp.OwnerEmail = &w.OwnerEmail.String
	}
	if w.AdminEmail.Valid {
		resp.AdminEmail = &w.AdminEmail.String
	}
	if w.LastActivityAt.Valid {
		s := w.LastActivityAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LastActivityAt = &s
	}
	return resp
}

func toWebsiteResponses(websites []*db.Website) []websiteResponse {
	out := make([]websiteResponse, len(websites))
	for i, w := range websites {
		out[i] = toWebsiteResponse(w)
	}
	return out
}
