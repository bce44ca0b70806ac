package api

import "github.com/gofiber/fiber/v2"

// SetupRoutes registers the JSON API on app
func SetupRoutes(app fiber.Router, h *Handlers, storageHandler *StorageHandler) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")

	docs := v1.Group("/documents")
	docs.Post("/", h.UploadDocument)
	docs.Get("/", h.ListDocuments)
	docs.Get("/:id", h.GetDocument)
	docs.Get("/:id/text", h.GetDocumentText)
	docs.Delete("/:id", h.DeleteDocument)
	docs.Post("/:id/metadata", h.GenerateMetadata)
	docs.Get("/:id/metadata", h.GetMetadata)
	docs.Get("/:id/metadata/download", h.DownloadMetadata)

	v1.Get("/stats", h.GetStats)
	v1.Get("/events/stats", h.GetEventStats)

	v1.Post("/batches", h.CreateBatch)
	v1.Get("/workflows/:id", h.GetWorkflow)

	if storageHandler != nil {
		st := v1.Group("/storage")
		st.Get("/metrics", storageHandler.GetStorageMetrics)
		st.Get("/health", storageHandler.GetStorageHealth)
		st.Get("/archive", storageHandler.GetArchiveHistory)
		st.Delete("/metrics", storageHandler.ClearMetrics)
	}
}
