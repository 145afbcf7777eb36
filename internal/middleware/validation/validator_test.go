package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxBodySize: 64}))
	app.All("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	cases := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"get passes", "GET", "", "", fiber.StatusNoContent},
		{"empty post passes", "POST", "", "", fiber.StatusNoContent},
		{"valid json", "POST", "application/json; charset=utf-8", `{"text":"x"}`, fiber.StatusNoContent},
		{"malformed json", "POST", "application/json", `{"text":`, fiber.StatusBadRequest},
		{"wrong type", "POST", "text/plain", "hello", fiber.StatusUnsupportedMediaType},
		{"too large", "PUT", "application/json", `{"text":"` + strings.Repeat("a", 100) + `"}`, fiber.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
