package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/config"
	"bitbucket.org/lahodne/vyroba_backend/models"
	"bitbucket.org/lahodne/vyroba_backend/models/reports"
	"bitbucket.org/lahodne/vyroba_backend/utils"
	"bitbucket.org/lahodne/vyroba_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("vyroba-backend")

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// writeError maps the typed error taxonomy onto HTTP statuses. Validation
// problems are the client's fault, stock and state conflicts are 409, and
// anything unrecognized stays a 500.
// writeError maps domain errors to status codes. Every error body
// carries the request correlation id so a client report can be matched
// against the server log.
func writeError(c *gin.Context, err error) {
	body := func(fields gin.H) gin.H {
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			fields["correlation_id"] = cid
		}
		return fields
	}
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, body(gin.H{"error": err.Error()}))
	case utils.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, body(gin.H{"error": err.Error()}))
	case utils.IsInsufficientStockError(err):
		var insufficient *utils.InsufficientStockError
		errors.As(err, &insufficient)
		c.JSON(http.StatusConflict, body(gin.H{
			"error":        err.Error(),
			"warehouse_id": insufficient.WarehouseId,
			"product_id":   insufficient.ProductId,
			"requested":    insufficient.Requested,
			"available":    insufficient.Available,
		}))
	case utils.IsInvalidStateError(err):
		c.JSON(http.StatusConflict, body(gin.H{"error": err.Error()}))
	default:
		var noRecipe *workflow.NoRecipeError
		var badOverride *workflow.InvalidOverrideError
		if errors.As(err, &noRecipe) || errors.As(err, &badOverride) {
			c.JSON(http.StatusBadRequest, body(gin.H{"error": err.Error()}))
			return
		}
		c.JSON(http.StatusInternalServerError, body(gin.H{"error": "internal error"}))
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return v, true
}

func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

func timeQuery(c *gin.Context, name string) *time.Time {
	s := c.Query(name)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func registerRoutes(r *gin.Engine, db *gorm.DB, engine *workflow.Engine, logger *logrus.Logger) {
	api := r.Group("/api/v1")

	// Warehouses.
	api.POST("/warehouses", func(c *gin.Context) {
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		warehouse, err := models.CreateWarehouse(c.Request.Context(), db, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, warehouse)
	})
	api.GET("/warehouses", func(c *gin.Context) {
		warehouses, err := models.ListWarehouses(c.Request.Context(), db)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouses)
	})
	api.DELETE("/warehouses/:id", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		warehouse, err := models.DeleteWarehouse(c.Request.Context(), db, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
	api.GET("/warehouses/:id/state", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		state, err := models.GetWarehouseState(c.Request.Context(), db, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	})

	// Products and recipes.
	api.POST("/products", func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), db, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})
	api.GET("/products", func(c *gin.Context) {
		var name *string
		if s := c.Query("name"); s != "" {
			name = &s
		}
		products, err := models.ListProducts(c.Request.Context(), db, name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	})
	api.GET("/products/:id", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), db, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
	api.PUT("/products/:id/recipe", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		var items []models.NewRecipeItem
		if err := c.ShouldBindJSON(&items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recipe, err := models.SetRecipe(c.Request.Context(), db, id, items)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
	api.GET("/products/:id/recipe", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		lines, err := models.GetRecipeLines(db.WithContext(c.Request.Context()), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, lines)
	})
	api.POST("/products/import", func(c *gin.Context) {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		defer file.Close()
		result, err := models.ImportCatalogWorkbook(c.Request.Context(), db, file)
		if err != nil {
			config.LogErrorCtx(c.Request.Context(), logger, "server.go", "productsImport", "ImportCatalogWorkbook", nil, err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Stock ledger.
	api.POST("/stock/receive", func(c *gin.Context) {
		var input workflow.ReceiveStockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := engine.ReceiveStock(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.POST("/stock/issue", func(c *gin.Context) {
		var input workflow.IssueStockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := engine.IssueStock(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.POST("/stock/write-off", func(c *gin.Context) {
		var input workflow.WriteOffStockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := engine.WriteOffStock(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.POST("/stock/adjust", func(c *gin.Context) {
		var input workflow.AdjustStockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := engine.AdjustStock(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.GET("/stock/ledger", func(c *gin.Context) {
		q := models.LedgerQuery{
			WarehouseId: intQuery(c, "warehouse_id"),
			ProductId:   intQuery(c, "product_id"),
			From:        timeQuery(c, "from"),
			To:          timeQuery(c, "to"),
			AfterId:     intQuery(c, "after_id"),
			Limit:       intQuery(c, "limit"),
		}
		if q.WarehouseId <= 0 || q.ProductId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "warehouse_id and product_id are required"})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "stock.ledger")
		defer span.End()
		movements, err := engine.GetLedger(ctx, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	})
	api.GET("/stock/ledger/export", func(c *gin.Context) {
		q := reports.StockMovementReportQuery{
			WarehouseId: intQuery(c, "warehouse_id"),
			ProductId:   intQuery(c, "product_id"),
			From:        timeQuery(c, "from"),
			To:          timeQuery(c, "to"),
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=movements.xlsx")
		if err := reports.ExportStockMovementXlsx(c.Request.Context(), db, q, c.Writer); err != nil {
			config.LogErrorCtx(c.Request.Context(), logger, "server.go", "ledgerExport", "ExportStockMovementXlsx", q, err)
		}
	})

	// Production batches.
	api.POST("/batches", func(c *gin.Context) {
		var input workflow.PlanBatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batch, err := engine.PlanBatch(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	})
	api.GET("/batches", func(c *gin.Context) {
		var status *models.BatchStatus
		if s := c.Query("status"); s != "" {
			bs := models.BatchStatus(s)
			status = &bs
		}
		batches, err := models.ListProductionBatches(c.Request.Context(), db, status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, batches)
	})
	api.GET("/batches/:id", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		detail, err := engine.GetBatchDetail(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	})
	api.POST("/batches/start", func(c *gin.Context) {
		var input workflow.StartBatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := engine.StartBatch(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		if result.RequiresConfirmation {
			// Not an error: the caller must repeat the request with
			// force_start after a human confirms the shortage list.
			c.JSON(http.StatusAccepted, result)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.POST("/batches/:id/finish", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		var input workflow.FinishBatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.BatchId = id
		result, err := engine.FinishBatch(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
	api.POST("/batches/:id/rework", func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		var input workflow.ReturnForReworkInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.BatchId = id
		result, err := engine.ReturnForRework(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.NewLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(gin.Recovery())
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if actor := c.GetHeader("x-actor"); actor != "" {
			ctx = utils.SetActorInContext(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-actor", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))

	db := config.ConnectDatabaseWithRetry()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate runs DDL that can block busy tables; allow running it as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTables(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	engineOpts := []workflow.EngineOption{}
	if locker := config.ConnectRedis(); locker != nil {
		engineOpts = append(engineOpts, workflow.WithLocker(locker))
	}
	if prodWh, finWh := os.Getenv("PRODUCTION_WAREHOUSE_ID"), os.Getenv("FINISHED_WAREHOUSE_ID"); prodWh != "" && finWh != "" {
		p, errP := strconv.Atoi(prodWh)
		f, errF := strconv.Atoi(finWh)
		if errP == nil && errF == nil {
			engineOpts = append(engineOpts, workflow.WithWarehouses(p, f))
		}
	}
	engine := workflow.NewEngine(db, logger, engineOpts...)

	registerRoutes(r, db, engine, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()
	log.Println("Server started on port " + port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
