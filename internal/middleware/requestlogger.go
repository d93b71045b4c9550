package middleware

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/repository"
)

// Buffered channel for async logging
var logChannel chan models.RequestLog

// Initializes the request logger worker. Entries are batched so a burst of
// metered requests costs one insert, not one per request.
func InitRequestLogger(repo repository.RequestLogRepository, bufferSize int) {
	logChannel = make(chan models.RequestLog, bufferSize)

	go func() {
		batch := make([]models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case entry := <-logChannel:
				batch = append(batch, entry)

				if len(batch) >= 100 {
					insertBatch(repo, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					insertBatch(repo, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			}
		}
	}()
}

func insertBatch(repo repository.RequestLogRepository, logs []models.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repo.CreateBatch(ctx, logs); err != nil {
		log.Printf("Failed to insert request logs: %v", err)
	}
}

// Records every request against the resolved identity for later velocity
// review. Dropping entries under pressure beats blocking the hot path.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if logChannel == nil {
			return
		}

		duration := time.Since(start)

		var identityID *uuid.UUID
		if v, exists := c.Get("identity_id"); exists {
			if id, ok := v.(uuid.UUID); ok {
				identityID = &id
			}
		}

		entry := models.RequestLog{
			Timestamp:      start,
			IdentityID:     identityID,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(duration.Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
		}

		select {
		case logChannel <- entry:
		default:
			log.Println("Request log channel full, skipping entry")
		}
	}
}
