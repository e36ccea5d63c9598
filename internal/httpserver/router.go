package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// audioBodyLimit caps turn submissions; a full voice capture at the maximum
// stream duration stays well under this.
const audioBodyLimit = "16M"

// New creates the configured Echo instance shared by main and the tests.
func New() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `${time_rfc3339} ${method} ${uri} status=${status} latency=${latency_human}` + "\n",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
	}))
	// Browser tutoring clients run on a different origin than the API.
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, "X-Admin-Key"},
	}))
	e.Use(middleware.BodyLimit(audioBodyLimit))
	return e
}
