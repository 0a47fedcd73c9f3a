package router

import "github.com/gofiber/fiber/v2"

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups into the app.
func InstallRouter(app *fiber.App) {
	for _, r := range []Router{
		NewHttpRouter(),
		NewApiRouter(),
	} {
		r.InstallRouter(app)
	}
}
