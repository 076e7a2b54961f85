package httpapi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weatherbug-uploader/internal/store"
	"github.com/i474232898/weatherbug-uploader/internal/uploader"
	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

var validate = validator.New()

// Uploader is the part of the upload worker the API needs.
type Uploader interface {
	Enqueue(rec weather.Record) error
	Stats() uploader.Stats
}

// NewApp returns a Fiber app with the service's error envelope.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. A new archive
// record is saved to the archive first and then handed to the uploader.
func RegisterRoutes(app *fiber.App, archive weather.ArchiveStore, up Uploader) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "wbug-uploader",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Post("/archive", func(c *fiber.Ctx) error {
		var rec weather.Record
		if err := json.Unmarshal(c.Body(), &rec); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid archive record: "+err.Error())
		}

		req := archiveRequest{DateTime: rec.DateTime, Units: int(rec.Units)}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := archive.Save(c.UserContext(), rec); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to store archive record")
		}

		if err := up.Enqueue(rec); err != nil {
			if errors.Is(err, uploader.ErrQueueFull) || errors.Is(err, uploader.ErrStopped) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to queue archive record")
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"dateTime": rec.DateTime,
			"queued":   true,
		})
	})

	v1.Get("/archive/latest", func(c *fiber.Ctx) error {
		rec, err := archive.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no archive records")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch latest record")
		}
		return c.JSON(rec)
	})

	v1.Get("/uploader/stats", func(c *fiber.Ctx) error {
		return c.JSON(up.Stats())
	})
}

// archiveRequest holds the reserved keys of an incoming record.
type archiveRequest struct {
	DateTime int64 `validate:"gt=0"`
	Units    int   `validate:"oneof=1 16 17"`
}
