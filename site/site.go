// Package site serves the health check and the sitemap.
package site

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkpress/auth"
	"inkpress/common"
	"inkpress/models"
)

type SiteModule struct {
	db     *gorm.DB
	domain string
}

// NewSiteModule builds the module. domain is the public origin of the
// frontend, without a trailing slash.
func NewSiteModule(db *gorm.DB, domain string) *SiteModule {
	return &SiteModule{db: db, domain: domain}
}

func (s *SiteModule) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", s.health)
}

// RegisterRootRoutes mounts the routes that live outside /api.
func (s *SiteModule) RegisterRootRoutes(router gin.IRoutes) {
	router.GET("/sitemap.xml", s.sitemap)
}

func (s *SiteModule) health(c *gin.Context) {
	user := "Anonymous"
	if u := auth.CurrentUser(c); u != nil {
		user = u.Email
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "CMS API is running",
		"user":    user,
	})
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func (s *SiteModule) sitemap(c *gin.Context) {
	var posts []models.Post
	err := s.db.WithContext(c.Request.Context()).
		Select("id", "updated_at").
		Where("status = ?", models.StatusPublished).
		Order("published_at DESC").
		Find(&posts).Error
	if err != nil {
		common.RespondError(c, err)
		return
	}

	set := urlset{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: s.domain + "/", ChangeFreq: "daily", Priority: "1.0"},
			{Loc: s.domain + "/contact", ChangeFreq: "yearly", Priority: "0.3"},
		},
	}
	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.domain + "/post/" + strconv.FormatUint(uint64(p.ID), 10),
			LastMod:    p.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), body...))
}
