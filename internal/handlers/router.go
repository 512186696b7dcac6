package handlers

import (
	"github.com/agroplatform/dictionary-service/internal/services"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	dictionaryHandler *DictionaryHandler
	importHandler     *ImportHandler
	authClient        *casdoorsdk.Client
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	authClient *casdoorsdk.Client,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		dictionaryHandler: NewDictionaryHandler(serviceManager.Dictionary(), serviceManager.Parser(), logger),
		importHandler:     NewImportHandler(serviceManager.Import(), serviceManager.Stack(), serviceManager.Parser(), logger),
		authClient:        authClient,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(RequestIDMiddleware())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "dictionary-service",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Reads stay open; every mutation requires an authenticated actor
		// because performedBy feeds the audit trail.
		readAuth := AuthMiddleware(hm.authClient, false)
		writeAuth := AuthMiddleware(hm.authClient, true)

		dictionaries := v1.Group("/dictionaries")
		{
			dictionaries.GET("", readAuth, hm.dictionaryHandler.ListDictionaries)
			dictionaries.POST("", writeAuth, hm.dictionaryHandler.CreateDictionary)
			dictionaries.GET("/:code", readAuth, hm.dictionaryHandler.GetDictionary)

			// Item reads and single edits
			dictionaries.GET("/:code/items", readAuth, hm.dictionaryHandler.ListItems)
			dictionaries.POST("/:code/items", writeAuth, hm.dictionaryHandler.CreateItem)
			dictionaries.GET("/:code/items/export", readAuth, hm.dictionaryHandler.ExportItems)

			// Bulk import and its history
			dictionaries.POST("/:code/import", writeAuth, hm.importHandler.Import)
			dictionaries.GET("/:code/imports", readAuth, hm.importHandler.History)
			dictionaries.GET("/:code/stack", readAuth, hm.importHandler.GetStack)
		}

		items := v1.Group("/items")
		{
			items.GET("/:id", readAuth, hm.dictionaryHandler.GetItem)
			items.PUT("/:id", writeAuth, hm.dictionaryHandler.UpdateItem)
			items.DELETE("/:id", writeAuth, hm.dictionaryHandler.DeleteItem)
		}

		imports := v1.Group("/imports")
		{
			imports.GET("/:id", readAuth, hm.importHandler.GetBatch)
			imports.GET("/:id/capabilities", readAuth, hm.importHandler.Capabilities)
			imports.POST("/:id/undo", writeAuth, hm.importHandler.Undo)
			imports.POST("/:id/redo", writeAuth, hm.importHandler.Redo)
			imports.DELETE("/:id", writeAuth, hm.importHandler.DeleteBatch)
		}
	}
}
