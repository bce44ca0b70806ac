package api

import (
	"time"

	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// StorageHandler provides HTTP endpoints for storage monitoring
type StorageHandler struct {
	store   storage.Store
	archive *storage.GitArchive
	metrics *storage.SimpleMetricsCollector
}

// NewStorageHandler creates a new storage handler. archive may be nil.
func NewStorageHandler(store storage.Store, archive *storage.GitArchive, metrics *storage.SimpleMetricsCollector) *StorageHandler {
	return &StorageHandler{
		store:   store,
		archive: archive,
		metrics: metrics,
	}
}

// GetStorageMetrics returns detailed performance metrics
func (h *StorageHandler) GetStorageMetrics(c *fiber.Ctx) error {
	summary := h.metrics.GetMetricsSummary()
	return c.JSON(fiber.Map{
		"metrics_summary":  summary,
		"retained_samples": len(h.metrics.GetMetrics()),
	})
}

// GetStorageHealth checks the session store and, when enabled, the archive
func (h *StorageHandler) GetStorageHealth(c *fiber.Ctx) error {
	ctx := c.UserContext()

	backends := fiber.Map{"memory": "healthy"}
	healthy := true
	if err := h.store.Health(ctx); err != nil {
		backends["memory"] = err.Error()
		healthy = false
	}
	if h.archive != nil {
		backends["git"] = "healthy"
		if err := h.archive.Health(ctx); err != nil {
			backends["git"] = err.Error()
			healthy = false
		}
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"healthy":  healthy,
		"backends": backends,
	})
}

// ArchiveCommit is one entry of the archive history
type ArchiveCommit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// GetArchiveHistory lists recent archive commits
func (h *StorageHandler) GetArchiveHistory(c *fiber.Ctx) error {
	if h.archive == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Archive is disabled",
		})
	}

	commits, err := h.archive.History(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to read archive history",
			"details": err.Error(),
		})
	}

	history := make([]ArchiveCommit, 0, len(commits))
	for _, commit := range commits {
		history = append(history, ArchiveCommit{
			Hash:    commit.Hash.String(),
			Message: commit.Message,
			Author:  commit.Author.Name,
			When:    commit.Author.When,
		})
	}
	return c.JSON(fiber.Map{"commits": history})
}

// ClearMetrics clears all collected metrics
func (h *StorageHandler) ClearMetrics(c *fiber.Ctx) error {
	h.metrics.ClearMetrics()
	return c.JSON(fiber.Map{
		"message": "Metrics cleared successfully",
	})
}
