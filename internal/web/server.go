package web

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"partsuite/internal"
	"partsuite/internal/pdfdoc"
	"partsuite/internal/pipeline"
)

// Uploader processes an uploaded bundle held in memory.
type Uploader interface {
	ProcessBytes(ctx context.Context, data []byte) (pipeline.Report, error)
}

type Server struct {
	uploader    Uploader
	artifacts   *pdfdoc.ArtifactWriter
	maxUploadMB int
	log         *slog.Logger
}

func NewServer(uploader Uploader, artifacts *pdfdoc.ArtifactWriter, maxUploadMB int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Server{uploader: uploader, artifacts: artifacts, maxUploadMB: maxUploadMB, log: logger}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.MaxMultipartMemory = int64(s.maxUploadMB) << 20

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/upload", s.upload)
	r.GET("/api/files", s.file)
	r.Static("/output", s.artifacts.Root())
	return r
}

type fileLinks struct {
	InvoicePDF string `json:"invoice_pdf,omitempty"`
	SummaryPDF string `json:"summary_pdf,omitempty"`
	MappingPDF string `json:"mapping_pdf,omitempty"`
}

type invoiceResponse struct {
	internal.ParsedInvoice
	Links *fileLinks        `json:"links,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type uploadResponse struct {
	RunID    string             `json:"run_id"`
	Method   string             `json:"method"`
	Pages    int                `json:"pages"`
	Sections int                `json:"sections"`
	Skipped  int                `json:"skipped"`
	Invoices []invoiceResponse  `json:"invoices"`
	Timings  map[string]float64 `json:"timings"`
}

func (s *Server) upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if header.Size > int64(s.maxUploadMB)<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload is not a PDF"})
		return
	}

	report, err := s.uploader.ProcessBytes(c.Request.Context(), data)
	if err != nil {
		status := http.StatusInternalServerError
		if pipeline.IsInputError(err) {
			status = http.StatusUnprocessableEntity
		}
		s.log.Warn("upload failed", "filename", header.Filename, "run_id", report.RunID, "error", err)
		c.JSON(status, gin.H{"error": err.Error(), "run_id": report.RunID})
		return
	}

	embed := c.Query("embed") == "1" || strings.EqualFold(c.Query("embed"), "true")
	resp := uploadResponse{
		RunID:    report.RunID,
		Method:   report.Method,
		Pages:    report.Pages,
		Sections: report.Sections,
		Skipped:  report.Skipped,
		Timings:  report.Timings,
		Invoices: make([]invoiceResponse, 0, len(report.Invoices)),
	}
	for _, inv := range report.Invoices {
		item := invoiceResponse{ParsedInvoice: inv}
		if set := inv.Artifacts; set != nil {
			item.Links = &fileLinks{
				InvoicePDF: s.link(set.InvoicePDF),
				SummaryPDF: s.link(set.SummaryPDF),
				MappingPDF: s.link(set.MappingPDF),
			}
			if embed {
				item.Data = s.encodeAll(set)
			}
		}
		resp.Invoices = append(resp.Invoices, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) file(c *gin.Context) {
	rel := c.Query("path")
	if rel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	if _, err := s.artifacts.Resolve(rel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := s.artifacts.Encode(rel)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": rel, "content_type": "application/pdf", "data": data})
}

// link turns an artifact path, which starts with the output root's own
// name, into its URL under /output.
func (s *Server) link(rel string) string {
	if rel == "" {
		return ""
	}
	prefix := path.Base(strings.ReplaceAll(s.artifacts.Root(), "\\", "/")) + "/"
	return "/output/" + strings.TrimPrefix(rel, prefix)
}

func (s *Server) encodeAll(set *internal.ArtifactSet) map[string]string {
	out := map[string]string{}
	for name, rel := range map[string]string{
		"invoice_pdf": set.InvoicePDF,
		"summary_pdf": set.SummaryPDF,
		"mapping_pdf": set.MappingPDF,
	} {
		if rel == "" {
			continue
		}
		data, err := s.artifacts.Encode(rel)
		if err != nil {
			s.log.Warn("encode artifact", "path", rel, "error", err)
			continue
		}
		out[name] = data
	}
	return out
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
