package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UsersController serves the protected user directory
type UsersController struct {
	Users      Users
	Middleware *RouteAuthenticator
	// Roles allowed to read the directory
	Roles []UserRole
}

// NewUsersController reads users through the auther repositories. Staff,
// doctors and admins may list users by default.
func NewUsersController(auther *Auther, middleware *RouteAuthenticator) *UsersController {
	return &UsersController{
		Users:      auther.Repositories().Users(),
		Middleware: middleware,
		Roles:      []UserRole{RoleDoctor, RoleStaff, RoleAdmin},
	}
}

// RegisterUserRoutes mounts GET / and GET /:id, usually on app.Group("/users")
func RegisterUserRoutes(router fiber.Router, controller *UsersController) {
	mw := controller.Middleware
	router.Get("/", mw.Authenticate(), mw.Authorize(controller.Roles...), controller.List)
	router.Get("/:id", mw.Authenticate(), mw.Authorize(controller.Roles...), controller.Get)
}

func (u *UsersController) List(c *fiber.Ctx) error {
	opts := ListUsersOptions{
		Limit:  c.QueryInt("limit", DefaultListLimit),
		Offset: c.QueryInt("offset", 0),
		Role:   UserRole(c.Query("role")),
	}

	records, total, err := u.Users.List(c.UserContext(), opts)
	if err != nil {
		return err
	}

	return SendSuccess(c, fiber.StatusOK, "Users retrieved", fiber.Map{
		"users": records,
		"total": total,
	})
}

func (u *UsersController) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrUserNotFound
	}

	user, err := u.Users.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}

	return SendSuccess(c, fiber.StatusOK, "User retrieved", fiber.Map{
		"user": user,
	})
}
