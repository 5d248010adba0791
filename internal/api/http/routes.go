package httpapi

import (
	"errors"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/i474232898/radar-composite/internal/geocode"
	"github.com/i474232898/radar-composite/internal/radar"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. resolver may be
// nil, in which case only lat/lon queries are accepted.
func RegisterRoutes(app *fiber.App, service *radar.Service, resolver geocode.Resolver) {
	v1 := app.Group("/api/v1/radar")

	v1.Get("/point", func(c *fiber.Ctx) error {
		lat, lon, err := resolvePoint(c, resolver)
		if err != nil {
			return err
		}

		samples, err := service.SamplePoint(c.UserContext(), lat, lon)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to sample point")
		}
		return respond(c, samples)
	})

	v1.Get("/point/summary", func(c *fiber.Ctx) error {
		lat, lon, err := resolvePoint(c, resolver)
		if err != nil {
			return err
		}

		summary, err := service.SummarizePoint(c.UserContext(), lat, lon)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to summarize point")
		}
		return respond(c, fiber.Map{
			"lat":     lat,
			"lon":     lon,
			"summary": summary,
		})
	})

	v1.Get("/artifacts", func(c *fiber.Ctx) error {
		names, err := service.Artifacts()
		if err != nil {
			if errors.Is(err, radar.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no artifact store configured")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list artifacts")
		}
		return c.JSON(fiber.Map{"artifacts": names})
	})

	v1.Post("/ingest", func(c *fiber.Ctx) error {
		res, err := service.IngestLatest(c.UserContext())
		if err != nil {
			if errors.Is(err, radar.ErrTransfer) || errors.Is(err, radar.ErrDecode) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "ingestion failed")
		}
		artifact, _ := res.Artifact()
		return c.JSON(fiber.Map{
			"result":   res,
			"artifact": artifact,
		})
	})

	v1.Post("/sweep", func(c *fiber.Ctx) error {
		report := service.SweepExpired(c.UserContext())
		evicted := make([]string, 0)
		for _, ts := range report.Evicted() {
			evicted = append(evicted, radar.FormatDir(ts))
		}
		return c.JSON(fiber.Map{
			"evicted": evicted,
			"report":  report,
		})
	})
}

// pointQuery identifies a point either by coordinates or by place name.
// Longitude is not range checked; it is normalized before sampling.
type pointQuery struct {
	Lat     *float64 `validate:"required_without=City,omitempty,latitude"`
	Lon     *float64 `validate:"required_without=City"`
	City    string   `validate:"required_without=Lat,required_with=Country"`
	Country string   `validate:"required_with=City"`
}

func parsePointQuery(c *fiber.Ctx) (pointQuery, error) {
	var q pointQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")

	for _, p := range []struct {
		key string
		dst **float64
	}{{"lat", &q.Lat}, {"lon", &q.Lon}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return q, errors.New("invalid " + p.key + "; use a decimal number")
		}
		*p.dst = &v
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func resolvePoint(c *fiber.Ctx, resolver geocode.Resolver) (float64, float64, error) {
	q, err := parsePointQuery(c)
	if err != nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if q.Lat != nil && q.Lon != nil {
		return *q.Lat, *q.Lon, nil
	}

	if resolver == nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, geocode.ErrDisabled.Error())
	}
	lat, lon, err := resolver.Resolve(q.City, q.Country)
	if err != nil {
		if errors.Is(err, geocode.ErrDisabled) {
			return 0, 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return 0, 0, fiber.NewError(fiber.StatusBadGateway, "failed to geocode location")
	}
	return lat, lon, nil
}

// respond writes v as JSON, or as MessagePack when format=msgpack.
func respond(c *fiber.Ctx, v any) error {
	if c.Query("format") != "msgpack" {
		return c.JSON(v)
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to encode response")
	}
	c.Set(fiber.HeaderContentType, "application/msgpack")
	return c.Send(data)
}
