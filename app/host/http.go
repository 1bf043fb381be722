package main

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/lo"

	"github.com/usbshark/usbshark/hexdump"
	"github.com/usbshark/usbshark/link"
)

const commandTimeout = 5 * time.Second

type txJSON struct {
	ID          uint64 `json:"id"`
	Timestamp   uint32 `json:"timestamp_us"`
	Kind        string `json:"kind"`
	Address     uint8  `json:"address"`
	Endpoint    uint8  `json:"endpoint"`
	FrameNumber uint16 `json:"frame_number,omitempty"`
	Status      string `json:"status,omitempty"`
	Description string `json:"description"`
	Packets     int    `json:"packets"`
	DataLen     int    `json:"data_len"`
	Incomplete  bool   `json:"incomplete,omitempty"`
}

func toTxJSON(r txRecord) txJSON {
	return txJSON{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Kind:        r.Kind.String(),
		Address:     r.DeviceAddress,
		Endpoint:    r.Endpoint,
		FrameNumber: r.FrameNumber,
		Status:      r.Status.String(),
		Description: r.Description,
		Packets:     len(r.Packets),
		DataLen:     len(txData(r)),
		Incomplete:  r.Incomplete,
	}
}

// txData concatenates the data-stage payloads of a transaction.
func txData(r txRecord) []byte {
	var out []byte
	for _, p := range r.Packets {
		out = append(out, p.Payload...)
	}
	return out
}

type captureReq struct {
	Speed       string `json:"speed"`
	Control     *bool  `json:"control"`
	Bulk        *bool  `json:"bulk"`
	Interrupt   *bool  `json:"interrupt"`
	Isochronous *bool  `json:"isochronous"`
	Address     uint8  `json:"address"`
	Endpoint    uint8  `json:"endpoint"`
	ExcludeIn   bool   `json:"exclude_in"`
	ExcludeOut  bool   `json:"exclude_out"`
}

func buildFiberApp(st *txStore, cl *client, base link.CaptureConfig, l *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	// Middlewares: recover from panics + compact request log
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${method} ${path} ${status} ${latency}\n",
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.Path(path.Clean(c.Path()))
		return c.Next()
	})

	// -------------------------------------------------------------------------
	// GET /status → device status + host-side counters
	// -------------------------------------------------------------------------
	app.Get("/status", func(c *fiber.Ctx) error {
		tctx, cancel := context.WithTimeout(c.Context(), commandTimeout)
		defer cancel()

		rep, err := cl.Status(tctx)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"devices":       rep.DeviceCount,
			"capture_state": rep.CaptureState.String(),
			"buffer_usage":  rep.BufferUsage,
			"transactions":  st.Len(),
		})
	})

	// -------------------------------------------------------------------------
	// GET /transactions → recent transactions, oldest first
	// -------------------------------------------------------------------------
	app.Get("/transactions", func(c *fiber.Ctx) error {
		return c.JSON(lo.Map(st.All(), func(r txRecord, _ int) txJSON {
			return toTxJSON(r)
		}))
	})

	// -------------------------------------------------------------------------
	// GET /transactions/:id/hex → data stage as a classic hex dump
	// -------------------------------------------------------------------------
	app.Get("/transactions/:id/hex", func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad transaction id"})
		}
		rec, ok := st.Get(id)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction not found"})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(hexdump.Dump(txData(rec)) + "\n")
	})

	// -------------------------------------------------------------------------
	// POST /capture/start → start with the host config, optionally overridden
	// -------------------------------------------------------------------------
	app.Post("/capture/start", func(c *fiber.Ctx) error {
		cc := base
		if len(c.Body()) > 0 {
			var req captureReq
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			over := hostConfig{Capture: captureYAML{
				Speed:       req.Speed,
				Control:     req.Control,
				Bulk:        req.Bulk,
				Interrupt:   req.Interrupt,
				Isochronous: req.Isochronous,
				Address:     req.Address,
				Endpoint:    req.Endpoint,
				ExcludeIn:   req.ExcludeIn,
				ExcludeOut:  req.ExcludeOut,
			}}
			var err error
			if cc, err = over.captureConfig(); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}

		tctx, cancel := context.WithTimeout(c.Context(), commandTimeout)
		defer cancel()
		if err := cl.StartCapture(tctx, cc); err != nil {
			return commandError(c, err)
		}
		return c.JSON(fiber.Map{"started": true})
	})

	// -------------------------------------------------------------------------
	// POST /capture/stop
	// -------------------------------------------------------------------------
	app.Post("/capture/stop", func(c *fiber.Ctx) error {
		tctx, cancel := context.WithTimeout(c.Context(), commandTimeout)
		defer cancel()
		if err := cl.StopCapture(tctx); err != nil {
			return commandError(c, err)
		}
		return c.JSON(fiber.Map{"stopped": true})
	})

	return app
}

// commandError maps a device Nack onto an HTTP status.
func commandError(c *fiber.Ctx, err error) error {
	var re *link.RemoteError
	if errors.As(err, &re) {
		switch re.Code {
		case link.ErrCodeInvalidCommand:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": re.Error()})
		case link.ErrCodeInvalidState:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": re.Error()})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": re.Error()})
		}
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
}
