// Package handlers contains the Fiber handlers of the preview API.
package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"projectpreview/internal/capture"
	"projectpreview/internal/domain"
	"projectpreview/internal/infra/slots"
)

type Previewer interface {
	Preview(ctx context.Context, year, username, project string) capture.Result
}

// HandlePreview answers GET /v1/preview/:year/:username/:project with either
// the PNG or a 302 to the static screenshot or fallback image. Capture errors
// never surface as an error status.
func HandlePreview(svc Previewer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := svc.Preview(c.UserContext(), c.Params("year"), c.Params("username"), c.Params("project"))
		return writeResult(c, res)
	}
}

func writeResult(c *fiber.Ctx, res capture.Result) error {
	c.Set(fiber.HeaderCacheControl, res.CacheControl)
	if res.Outcome == capture.OutcomeImage {
		c.Set(fiber.HeaderContentType, res.ContentType)
		return c.Status(fiber.StatusOK).Send(res.Body)
	}
	c.Set("X-Preview-Outcome", string(res.Outcome))
	if res.Err != nil {
		c.Set("X-Preview-Reason", domain.Reason(res.Err))
	}
	return c.Redirect(res.Location, fiber.StatusFound)
}

type StatsSource interface {
	Stats() slots.Stats
}

// HandleSlotStats reports the capture slot guard counters.
func HandleSlotStats(src StatsSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(src.Stats())
	}
}

type PathLister interface {
	Paths(year int) []domain.CaptureRequest
}

type pathParams struct {
	Year     string `json:"year"`
	Username string `json:"username"`
	Project  string `json:"project"`
}

// HandlePaths lists the preview paths of a year, in the shape a static site
// generator expects for its route params.
func HandlePaths(src PathLister) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year, err := strconv.Atoi(c.Params("year"))
		if err != nil || year <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "year must be a positive integer")
		}
		reqs := src.Paths(year)
		out := make([]pathParams, 0, len(reqs))
		for _, r := range reqs {
			out = append(out, pathParams{Year: strconv.Itoa(r.Year), Username: r.Username, Project: r.Project})
		}
		return c.JSON(fiber.Map{"year": year, "paths": out})
	}
}
